package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/cavotieno/forgery-analyzer/internal/models"
	"github.com/cavotieno/forgery-analyzer/internal/views"
)

// AuthController handles signup/signin flows.
type AuthController struct {
	userService    *models.UserService
	sessionService *models.SessionService
	signupTemplate *views.Template
	signinTemplate *views.Template

	cookieName    string
	secureCookies bool
}

func NewAuthController(
	us *models.UserService,
	ss *models.SessionService,
	signupTpl, signinTpl *views.Template,
	cookieName string,
	secureCookies bool,
) *AuthController {
	return &AuthController{
		userService:    us,
		sessionService: ss,
		signupTemplate: signupTpl,
		signinTemplate: signinTpl,
		cookieName:     cookieName,
		secureCookies:  secureCookies,
	}
}

// GetSignUp displays the signup form.
func (ac *AuthController) GetSignUp(w http.ResponseWriter, r *http.Request) {
	ac.signupTemplate.ExecuteHTTP(w, r, &views.TemplateData{
		Title:     "Sign Up",
		CSRFToken: csrf.TemplateField(r),
	})
}

// PostSignUp creates a new user and signs them in.
func (ac *AuthController) PostSignUp(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ac.renderSignup(w, r, "Failed to parse form")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	confirmPassword := r.FormValue("confirm_password")

	if email == "" {
		ac.renderSignup(w, r, "Email is required")
		return
	}
	if password == "" {
		ac.renderSignup(w, r, "Password is required")
		return
	}
	if password != confirmPassword {
		ac.renderSignup(w, r, "Passwords do not match")
		return
	}

	user, err := ac.userService.Create(r.Context(), email, password)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrEmailAlreadyExists):
			ac.renderSignup(w, r, "An account with that email already exists")
		case errors.Is(err, models.ErrPasswordTooShort):
			ac.renderSignup(w, r, "Password must be at least 8 characters")
		default:
			ac.renderSignup(w, r, "Failed to create account")
		}
		return
	}

	session, err := ac.sessionService.Create(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	ac.setCookie(w, session.Token)
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

// GetSignIn displays the signin form.
func (ac *AuthController) GetSignIn(w http.ResponseWriter, r *http.Request) {
	ac.signinTemplate.ExecuteHTTP(w, r, &views.TemplateData{
		Title:     "Sign In",
		CSRFToken: csrf.TemplateField(r),
	})
}

// PostSignIn authenticates a user and creates a session.
func (ac *AuthController) PostSignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ac.renderSignin(w, r, "Failed to parse form")
		return
	}

	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	if email == "" || password == "" {
		ac.renderSignin(w, r, "Email and password are required")
		return
	}

	user, err := ac.userService.Authenticate(r.Context(), email, password)
	if err != nil {
		ac.renderSignin(w, r, "Invalid email or password")
		return
	}

	session, err := ac.sessionService.Create(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	ac.setCookie(w, session.Token)

	redirect := r.FormValue("redirect")
	if redirect == "" || !strings.HasPrefix(redirect, "/") {
		redirect = "/dashboard"
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// PostLogout deletes the current session and clears the cookie.
func (ac *AuthController) PostLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(ac.cookieName)
	if err == nil {
		// Best effort: an expired or missing session is fine.
		_ = ac.sessionService.Delete(r.Context(), cookie.Value)
	}

	ac.deleteCookie(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (ac *AuthController) renderSignup(w http.ResponseWriter, r *http.Request, errMsg string) {
	ac.signupTemplate.ExecuteHTTPWithStatus(w, r, http.StatusUnprocessableEntity, &views.TemplateData{
		Title:     "Sign Up",
		CSRFToken: csrf.TemplateField(r),
		Error:     errMsg,
	})
}

func (ac *AuthController) renderSignin(w http.ResponseWriter, r *http.Request, errMsg string) {
	ac.signinTemplate.ExecuteHTTPWithStatus(w, r, http.StatusUnprocessableEntity, &views.TemplateData{
		Title:     "Sign In",
		CSRFToken: csrf.TemplateField(r),
		Error:     errMsg,
	})
}

func (ac *AuthController) setCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     ac.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   24 * 60 * 60,
		HttpOnly: true,
		Secure:   ac.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (ac *AuthController) deleteCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     ac.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   ac.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}
