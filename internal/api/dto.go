package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/tangle/internal/models"
)

// UpsertBody is the POST /api/notes request body.
type UpsertBody models.UpsertRequest

// Validate implements validation.Validatable.
func (b UpsertBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required, validation.Length(1, 256)),
	)
}

// UpsertResponse echoes the stored record, including the server-assigned
// updated_at.
type UpsertResponse struct {
	Note models.RemoteNote `json:"note"`
}

func (b UpsertBody) toRequest() models.UpsertRequest {
	return models.UpsertRequest(b)
}
