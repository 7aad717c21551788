package common

const (
	// MaxMultipartMemory limits the in-memory portion of multipart parsing.
	MaxMultipartMemory = 32 << 20
	// MaxStatusRequestBody limits JSON request bodies for status endpoints.
	MaxStatusRequestBody = 1 << 20
)
