package mcpserver

// NoteFormatContract describes how notes are written so that links and tags
// are picked up.
const NoteFormatContract = `# Tangle Note Format

A note has a **title** and a plain-text **content** body. There is no
frontmatter; everything is derived from the body.

## Links

- Write ` + "`[[Title]]`" + ` anywhere in the content to link to the note with that title.
- Matching is case-insensitive: ` + "`[[meeting notes]]`" + ` links to "Meeting Notes".
- Links to titles that do not exist yet are kept as text and resolve as soon as
  a note with that title is created.
- Renaming a note rewrites every ` + "`[[Old Title]]`" + ` in other notes to the new title.
- Deleting a note removes the brackets pointing at it; the text stays.
- If two notes share a title, links resolve to the most recently created one.
  Prefer unique titles.

## Tags

- Write ` + "`#tag`" + ` in the content. Tags are letters, digits, ` + "`_`" + ` and ` + "`-`" + `.
- Tags are read from the content on every change; they cannot be set separately.

## Example

` + "```" + `text
Title: Weekly standup 2025-01-20

Discussed the [[Roadmap]] with [[Alice]]. #meeting #project-x

Follow-up in [[Design Doc]].
` + "```" + `
`
