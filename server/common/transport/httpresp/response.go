package httpresp

const (
	ErrInvalidCredentials  = "invalid credentials"
	ErrInvalidInput        = "invalid input"
	ErrMissingBearerToken  = "bearer token is required"
	ErrInvalidToken        = "invalid token"
	ErrVerificationFailed  = "session or role verification failed"
	ErrNotFound            = "not found"
	ErrFetchFailed         = "failed to fetch data"
	ErrInternal            = "internal error"
	ErrUserAlreadyExists   = "user already exists"
	ErrGradeMustBeNumeric  = "grade must be a number"
	ErrAttachmentsDisabled = "attachments are disabled"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details []string          `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

type IDResponse struct {
	ID string `json:"id"`
}

type URLResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Email       string `json:"email"`
	IsDean      bool   `json:"is_dean"`
}

// ReportResponse carries per-item outcomes of a fan-out operation.
type ReportResponse struct {
	OK       bool     `json:"ok"`
	Failures []string `json:"failures,omitempty"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Error: message}
}

func NewValidationResponse(message string, fields map[string]string) ErrorResponse {
	return ErrorResponse{Error: message, Fields: fields}
}

func NewOKResponse() OKResponse {
	return OKResponse{OK: true}
}

func NewIDResponse(id string) IDResponse {
	return IDResponse{ID: id}
}

func NewURLResponse(url, thumbnailURL string) URLResponse {
	return URLResponse{URL: url, ThumbnailURL: thumbnailURL}
}

func NewTokenResponse(accessToken, email string, isDean bool) TokenResponse {
	return TokenResponse{AccessToken: accessToken, Email: email, IsDean: isDean}
}

func NewReportResponse(failures []string) ReportResponse {
	return ReportResponse{OK: len(failures) == 0, Failures: failures}
}
