// Package errs defines the error shapes returned to API clients.
//
// Every error that leaves a handler is funnelled into HTTPError by the
// global error handler so clients always receive the same JSON structure:
// a machine code, a message, the status, optional field errors and an
// optional action hint.
package errs
