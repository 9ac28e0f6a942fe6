package mcpserver

// JobFormatContract describes the job payloads the worker accepts. LLM
// consumers read it before calling enqueue_job.
const JobFormatContract = `# Synapse Job Format Contract

Indexing work is requested by pushing a JSON job onto one of four queues.
Every job is validated before it is queued; invalid jobs are rejected.

## Queues

| Queue | Payload | Effect |
|---|---|---|
| ` + "`create-note-semantics`" + ` | ` + "`{\"noteId\", \"userId\", \"data\"}`" + ` | Chunk, embed and store a note. |
| ` + "`update-note-semantics`" + ` | ` + "`{\"noteId\", \"userId\", \"data\"}`" + ` | Re-chunk a note; only changed chunks are embedded. |
| ` + "`delete-note-semantics`" + ` | ` + "`{\"noteId\", \"reason\"}`" + ` | Drop every chunk of a note and refund its tokens. |
| ` + "`persist-note-data`" + ` | ` + "`{\"noteId\"}`" + ` | Flush the staged note blob into the note record. |

## Fields

1. **noteId** and **userId** are required strings.
2. **data** is the note title, a blank line, then the Markdown body.
3. **reason** is optional. One of ` + "`UserCancelled`" + ` (default), ` + "`NoteDeleted`" + `,
   ` + "`Error`" + `, ` + "`Other`" + `.

## Limits

Create and update jobs are refused with status ` + "`Failed To Memorize`" + ` and
reason ` + "`TokenLimitReached`" + ` once the user's embedded token total reaches the
limit of their tier. Check it with the get_usage tool.

## Example

` + "```" + `json
{
  "noteId": "2b1c7a8e-5d0f-4c1e-9a55-0f3f1f2a9d11",
  "userId": "u-42",
  "data": "Weekly standup\n\n## Action items\n\n- review the design doc"
}
` + "```" + `
`
