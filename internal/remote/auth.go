package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"

	"github.com/mmcdole/sarathi/internal/domain"
	"golang.org/x/term"
)

const phoneDigits = 10

// ErrInvalidPhone is returned for anything other than a 10-digit mobile number.
var ErrInvalidPhone = errors.New("enter a 10-digit mobile number")

// ValidatePhone strips spaces and dashes and checks for exactly ten digits.
func ValidatePhone(raw string) (string, error) {
	phone := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	if len(phone) != phoneDigits {
		return "", ErrInvalidPhone
	}
	for _, r := range phone {
		if r < '0' || r > '9' {
			return "", ErrInvalidPhone
		}
	}
	return phone, nil
}

// MaskPhone hides all but the last four digits.
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	return "****" + phone[len(phone)-4:]
}

type otpClient interface {
	SendOTP(ctx context.Context, phone string) error
	VerifyOTP(ctx context.Context, phone, otp string) (string, error)
}

// AuthFlow implements domain.AuthFlow for phone + OTP login.
type AuthFlow struct {
	client otpClient
	logger *slog.Logger

	in         *bufio.Reader
	out        io.Writer
	readSecret func() (string, error)
}

// NewAuthFlow creates an interactive OTP flow on the terminal.
func NewAuthFlow(client otpClient, logger *slog.Logger) *AuthFlow {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthFlow{
		client: client,
		logger: logger,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		readSecret: func() (string, error) {
			b, err := term.ReadPassword(int(syscall.Stdin))
			return string(b), err
		},
	}
}

// WithIO replaces the terminal with in/out. The OTP is read from in as well.
func (f *AuthFlow) WithIO(in io.Reader, out io.Writer) *AuthFlow {
	f.in = bufio.NewReader(in)
	f.out = out
	f.readSecret = func() (string, error) {
		return f.readLine()
	}
	return f
}

func (f *AuthFlow) readLine() (string, error) {
	line, err := f.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Run prompts for a phone number and the OTP sent to it.
func (f *AuthFlow) Run(ctx context.Context) (*domain.AuthResult, error) {
	fmt.Fprintln(f.out)
	fmt.Fprintln(f.out, "Sarathi Login")
	fmt.Fprintln(f.out, "━━━━━━━━━━━━━")

	fmt.Fprint(f.out, "Mobile number: ")
	raw, err := f.readLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read phone: %w", err)
	}
	phone, err := ValidatePhone(raw)
	if err != nil {
		return nil, err
	}

	if err := f.client.SendOTP(ctx, phone); err != nil {
		f.logger.Error("send OTP failed", "error", err)
		return nil, err
	}
	fmt.Fprintf(f.out, "OTP sent to %s\n", MaskPhone(phone))

	fmt.Fprint(f.out, "OTP: ")
	otp, err := f.readSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to read OTP: %w", err)
	}
	fmt.Fprintln(f.out)

	otp = strings.TrimSpace(otp)
	if otp == "" {
		return nil, fmt.Errorf("%w: empty OTP", domain.ErrAuthFailed)
	}

	token, err := f.client.VerifyOTP(ctx, phone, otp)
	if err != nil {
		return nil, err
	}

	fmt.Fprintln(f.out, "Login successful!")
	return &domain.AuthResult{Token: token, Phone: phone}, nil
}
