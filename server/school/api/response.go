package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolboard/server/common/transport/httpresp"
	"schoolboard/server/docstore"
	"schoolboard/server/school/domain"
	"schoolboard/server/school/service"
)

type ErrorResponse = httpresp.ErrorResponse
type OKResponse = httpresp.OKResponse
type IDResponse = httpresp.IDResponse
type URLResponse = httpresp.URLResponse
type TokenResponse = httpresp.TokenResponse
type ReportResponse = httpresp.ReportResponse

type HealthResponse struct {
	Status string `json:"status"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type CreateConversationResponse struct {
	ID       string   `json:"id"`
	OK       bool     `json:"ok"`
	Failures []string `json:"failures,omitempty"`
}

type ItemsResponse[T any] struct {
	Items    []T                    `json:"items"`
	Failures []domain.DecodeFailure `json:"failures,omitempty"`
}

func NewHealthResponse(status string) HealthResponse {
	return HealthResponse{Status: status}
}

func NewItemsResponse[T any](snap service.Snapshot[T]) ItemsResponse[T] {
	items := snap.Items
	if items == nil {
		items = []T{}
	}
	return ItemsResponse[T]{Items: items, Failures: snap.Failures}
}

func NewReportResponse(report service.FanoutReport) ReportResponse {
	return httpresp.NewReportResponse(report.Failures())
}

// statusFor maps service errors onto HTTP status codes and public messages.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized, httpresp.ErrInvalidCredentials
	case errors.Is(err, domain.ErrVerificationFailed):
		return http.StatusForbidden, httpresp.ErrVerificationFailed
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, httpresp.ErrUserAlreadyExists
	case errors.Is(err, docstore.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, httpresp.ErrNotFound
	case errors.Is(err, domain.ErrFetchFailed):
		return http.StatusNotFound, httpresp.ErrFetchFailed
	default:
		return http.StatusInternalServerError, httpresp.ErrInternal
	}
}

func writeError(c *gin.Context, err error) {
	status, message := statusFor(err)
	if fields := domain.FieldErrors(err); fields != nil {
		c.JSON(status, httpresp.NewValidationResponse(httpresp.ErrInvalidInput, fields))
		return
	}
	c.JSON(status, httpresp.NewErrorResponse(message))
}
