package handlers

// RespOK is the generic success envelope, declared for swagger only.
type RespOK struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}
