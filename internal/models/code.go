package models

// Code is the numeric result carried in every auth response body.
type Code int

const (
	CodeOK                 Code = 0
	CodeInvalidCredentials Code = 1
	CodeUsernameTaken      Code = 2
	CodeMissingField       Code = 3
	CodePersistence        Code = 4
)
