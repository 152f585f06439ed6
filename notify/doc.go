// Package notify delivers transactional mail through the Resend API. It
// implements the kimlik.Notifier contract, so deployments with a different
// provider only swap the constructor passed to the engine builder.
package notify
