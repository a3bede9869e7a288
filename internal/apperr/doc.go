// Package apperr defines the error taxonomy shared by the analysis pipeline:
// configuration problems, collaborator transport failures and rejected input.
package apperr
