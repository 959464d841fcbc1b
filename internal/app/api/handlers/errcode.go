package handlers

import (
	"github.com/topservers/credits/pkg/apperr"
	"github.com/topservers/credits/pkg/response"
)

// errCode maps the shared error taxonomy onto envelope codes.
func errCode(err error) response.APIResponseCode {
	switch {
	case apperr.IsValidation(err):
		return response.APIResponseCodeBadRequest
	case apperr.IsAuthentication(err):
		return response.APIResponseCodeUnauthorized
	case apperr.IsNotFound(err):
		return response.APIResponseCodeNotFound
	case apperr.IsUpstream(err):
		return response.APIResponseCodeUpstream
	default:
		return response.APIResponseCodeError
	}
}
