// Package supabase updates rows through a Supabase project's PostgREST API.
//
// Each update is a single PATCH filtered on the row id:
//
//	PATCH {project}/rest/v1/{table}?id=eq.{id}
//	apikey: <key>
//	Authorization: Bearer <key>
//	Prefer: return=representation
//
//	{"<column>": ["value", ...]}
//
// The write is idempotent, so the client may re-issue it when
// Options.MaxAttempts allows. Failures are *errors.Error values typed from
// the HTTP status; an empty representation means no row matched and is
// reported as not_found.
package supabase
