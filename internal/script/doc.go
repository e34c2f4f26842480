// Package script turns article text into a validated, ordered dialogue.
//
// Composer asks a Generator for a two-host conversation and parses the reply
// with a strict line grammar: every non-blank line must be ROLE: text, where
// ROLE is one of the show's configured speaker tokens. A single line that
// does not match rejects the whole script with services.ErrScriptParse;
// nothing is silently dropped. Transport failures from the generator are
// retried with exponential backoff through services.Retry.
package script
