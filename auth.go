package main

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

const (
	placeholderToken = "dummy"
	msgLoginOK       = "Login successful!"
	msgRegisterOK    = "Register successful!"
	msgAuthFailed    = "Something went wrong"
	msgAuthNetwork   = "Network error"
	msgMissingFields = "Vui lòng nhập email và mật khẩu"
	loginPath        = "/auth/login"
	registerPath     = "/auth/register"
)

// AuthAPI is the part of the backend the auth form uses.
type AuthAPI interface {
	Login(ctx context.Context, creds Credentials) (AuthResponse, error)
	Register(ctx context.Context, creds Credentials) (AuthResponse, error)
}

// AuthForm collects credentials and logs in or registers. It starts in
// login mode.
type AuthForm struct {
	api     AuthAPI
	session *Session
	bus     *Bus
	logger  *zap.Logger

	Message *Flash

	mu      sync.Mutex
	isLogin bool
	email   string
}

func NewAuthForm(api AuthAPI, session *Session, bus *Bus, logger *zap.Logger) *AuthForm {
	return &AuthForm{
		api:     api,
		session: session,
		bus:     bus,
		logger:  logger,
		Message: NewFlash(messageTTL),
		isLogin: true,
	}
}

func (a *AuthForm) IsLogin() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.isLogin
}

// Toggle switches between login and register and clears the message.
func (a *AuthForm) Toggle() {
	a.mu.Lock()
	a.isLogin = !a.isLogin
	a.mu.Unlock()
	a.Message.Clear()
}

// Email is the last submitted email, used to refill the form.
func (a *AuthForm) Email() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.email
}

// Submit sends the credentials once. onSuccess runs after the token is
// stored and before the login is published.
func (a *AuthForm) Submit(ctx context.Context, email, password string, onSuccess func()) {
	a.Message.Clear()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		a.Message.Show(msgMissingFields)
		return
	}

	a.mu.Lock()
	isLogin := a.isLogin
	a.email = email
	a.mu.Unlock()

	creds := Credentials{Email: email, Password: password}
	var (
		resp AuthResponse
		err  error
		path = registerPath
	)
	if isLogin {
		path = loginPath
		resp, err = a.api.Login(ctx, creds)
	} else {
		resp, err = a.api.Register(ctx, creds)
	}
	if err != nil {
		a.logger.Warn("authenticating", zap.String("path", path), zap.Error(err))
		a.Message.Show(errorMessage(err, msgAuthFailed, msgAuthNetwork))
		return
	}

	token := resp.AccessToken
	if token == "" {
		token = placeholderToken
	}
	if err := a.session.Set(token); err != nil {
		a.logger.Error("storing token", zap.Error(err))
		a.Message.Show(msgAuthFailed)
		return
	}

	if isLogin {
		a.Message.Show(msgLoginOK)
	} else {
		a.Message.Show(msgRegisterOK)
	}
	a.logger.Info("authenticated", zap.String("path", path))

	if onSuccess != nil {
		onSuccess()
	}
	a.bus.Publish(ctx, EventLoggedIn)
}
