package checksum

import "testing"

func TestSum(t *testing.T) {
	// sha256("")
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s", got)
	}
}

func TestETag(t *testing.T) {
	a := ETag([]byte(`[{"id":"a"}]`))
	b := ETag([]byte(`[{"id":"b"}]`))
	if a == b {
		t.Error("different bodies share an ETag")
	}
	if len(a) != 34 || a[0] != '"' || a[len(a)-1] != '"' {
		t.Errorf("malformed ETag %s", a)
	}
	if a != ETag([]byte(`[{"id":"a"}]`)) {
		t.Error("ETag not deterministic")
	}
}
