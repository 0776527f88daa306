package vision

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed estimation.
type Kind int

const (
	UpstreamOther Kind = iota
	MissingCredentials
	NoImageProvided
	ImageTooLarge
	UpstreamUnauthorized
	UpstreamRateLimited
	UpstreamBadRequest
)

func (k Kind) String() string {
	switch k {
	case MissingCredentials:
		return "missing_credentials"
	case NoImageProvided:
		return "no_image_provided"
	case ImageTooLarge:
		return "image_too_large"
	case UpstreamUnauthorized:
		return "upstream_unauthorized"
	case UpstreamRateLimited:
		return "upstream_rate_limited"
	case UpstreamBadRequest:
		return "upstream_bad_request"
	default:
		return "upstream_other"
	}
}

// Status is the HTTP status a failure of this kind is reported with.
func (k Kind) Status() int {
	switch k {
	case NoImageProvided, UpstreamBadRequest:
		return http.StatusBadRequest
	case ImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case UpstreamUnauthorized:
		return http.StatusUnauthorized
	case UpstreamRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

var userMessages = map[Kind]string{
	MissingCredentials:   "APIキーが設定されていません。環境変数 ANTHROPIC_API_KEY を確認してください。",
	NoImageProvided:      "画像が提供されていません",
	ImageTooLarge:        "画像サイズが大きすぎます。より小さな画像をお試しください。",
	UpstreamUnauthorized: "APIキーが無効です。正しいAPIキーが設定されているか確認してください。",
	UpstreamRateLimited:  "APIの利用制限に達しました。しばらく待ってからお試しください。",
	UpstreamBadRequest:   "リクエストの形式が正しくありません。画像を確認してください。",
}

// Error is a classified estimation failure. Message is safe to show to the
// user; Err holds the underlying cause, if any.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// NewError builds an Error with the default user message for kind.
func NewError(kind Kind, err error) *Error {
	msg, ok := userMessages[kind]
	if !ok {
		msg = "予期しないエラーが発生しました。しばらく待ってからお試しください。"
		if err != nil {
			msg = "分析中にエラーが発生しました: " + err.Error()
		}
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Status() int { return e.Kind.Status() }

// KindOf returns the kind of err, or UpstreamOther when err is not an *Error.
func KindOf(err error) Kind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return UpstreamOther
}

// StatusKind maps an upstream HTTP status to a failure kind.
func StatusKind(status int) Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return UpstreamUnauthorized
	case http.StatusTooManyRequests:
		return UpstreamRateLimited
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return UpstreamBadRequest
	default:
		return UpstreamOther
	}
}
