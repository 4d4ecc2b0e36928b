package view

import (
	"github.com/dwarvesf/secret-bridge/internal/orchestrator"
)

type Response[T any] struct {
	Data    T           `json:"data"`
	Error   *string     `json:"error,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Message string      `json:"message,omitempty"`
	// set whenever the error belongs to a known operation
	OperationID string `json:"operationId,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
}

type MessageResponse struct {
	Data string `json:"data"`
}

type ErrorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	OperationID string `json:"operationId,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
}

func CreateResponse[T any](data T, err error, payload interface{}, message string) Response[T] {
	resp := Response[T]{
		Data:    data,
		Payload: payload,
		Message: message,
	}
	if err != nil {
		e := err.Error()
		resp.Error = &e
		if opErr, ok := orchestrator.AsOperationError(err); ok {
			resp.OperationID = opErr.OperationID
			resp.TxHash = opErr.TxHash
		}
	}
	return resp
}
