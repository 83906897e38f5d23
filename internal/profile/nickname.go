// Package profile validates user nicknames and checks their availability.
package profile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/trip-planner/planner/internal/apperr"
	"github.com/trip-planner/planner/internal/logging"
	"golang.org/x/text/unicode/norm"
)

const (
	minLength       = 2
	maxLengthHangul = 6
	maxLengthLatin  = 8
)

const (
	msgEmpty       = "닉네임을 입력해주세요."
	msgTooShort    = "닉네임은 최소 2자 이상이어야 합니다."
	msgHangulLong  = "한글 닉네임은 6자 이하만 가능합니다."
	msgLatinLong   = "영문 닉네임은 8자 이하만 가능합니다."
	msgAvailable   = "사용 가능한 닉네임입니다."
	msgTaken       = "이미 사용 중인 닉네임입니다."
	msgCheckFailed = "오류가 발생했습니다."
)

// Checker asks the backend whether a nickname is free.
type Checker interface {
	CheckNickname(ctx context.Context, nickname string) (bool, error)
}

// Result is the outcome of a nickname check. Available is nil when the
// question could not be answered.
type Result struct {
	Nickname  string `json:"nickname"`
	Available *bool  `json:"available"`
	Message   string `json:"message"`
}

type nicknameInput struct {
	Nickname string `validate:"required,nickname_min,nickname_max"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("nickname_min", func(fl validator.FieldLevel) bool {
		return length(fl.Field().String()) >= minLength
	})
	_ = v.RegisterValidation("nickname_max", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return length(s) <= maxLength(s)
	})
	return v
}

// Normalize trims s and composes decomposed Hangul so each syllable counts once.
func Normalize(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ValidateNickname checks the local nickname rules: at least 2 characters,
// at most 6 when the name contains Hangul and 8 otherwise.
func ValidateNickname(nickname string) error {
	nickname = Normalize(nickname)

	err := validate.Struct(nicknameInput{Nickname: nickname})
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Validation(msgEmpty, nil)
	}

	msg := msgEmpty
	switch verrs[0].Tag() {
	case "nickname_min":
		msg = msgTooShort
	case "nickname_max":
		msg = msgLatinLong
		if containsHangul(nickname) {
			msg = msgHangulLong
		}
	}
	return apperr.Validation(msg, map[string]any{"nickname": verrs[0].Tag()})
}

func containsHangul(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func maxLength(s string) int {
	if containsHangul(s) {
		return maxLengthHangul
	}
	return maxLengthLatin
}

// Service validates nicknames locally and asks the backend about the rest.
type Service struct {
	checker Checker
	logger  *slog.Logger
}

// NewService creates a nickname service.
func NewService(checker Checker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{checker: checker, logger: logger.With("component", "profile")}
}

// Check validates raw and, when valid, asks the backend. Invalid nicknames
// return a validation error and never reach the network.
func (s *Service) Check(ctx context.Context, raw string) (Result, error) {
	nickname := Normalize(raw)
	res := Result{Nickname: nickname}

	if err := ValidateNickname(nickname); err != nil {
		res.Message = apperr.As(err).Message
		return res, err
	}

	free, err := s.checker.CheckNickname(ctx, nickname)
	if err != nil {
		s.logger.Warn("nickname check failed", "error", err)
		res.Message = msgCheckFailed
		return res, apperr.Unavailable("nickname check", err)
	}

	res.Available = &free
	res.Message = msgTaken
	if free {
		res.Message = msgAvailable
	}
	return res, nil
}
