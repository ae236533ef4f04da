package main

import (
	"net/http"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/menu"
	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/internal/validator"
)

func (app *application) registerUserHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		User notes.Registration `json:"user"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	user, err := app.notes.RegisterUser(r.Context(), request.User)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.respondWithToken(w, r, http.StatusCreated, user)
}

func (app *application) loginHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		User struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		} `json:"user"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	v := validator.New()
	checkEmail(v, request.User.Email)
	v.CheckNotBlank(request.User.Password, "password", "must be provided")
	if !v.IsValid() {
		app.failedValidationResponse(w, r, nil, v.Errors)
		return
	}

	user, err := app.notes.Authenticate(r.Context(), request.User.Email, request.User.Password)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	app.respondWithToken(w, r, http.StatusOK, user)
}

func (app *application) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user *auth.User) {
	token, err := app.auth.GenerateToken(user, app.config.Auth.TokenTTL)
	if err != nil {
		app.internalErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, status, userResponse(user, token), nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

// logoutHandler only acknowledges the logout: tokens are stateless and the
// client drops its copy.
func (app *application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) currentUserHandler(w http.ResponseWriter, r *http.Request) {
	user, err := app.auth.GetAuthenticatedUser(r)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, userResponse(user, user.Token), nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) menuHandler(w http.ResponseWriter, r *http.Request) {
	items := menu.Build(app.auth.ActorFrom(r))
	if err := app.writeJSON(w, http.StatusOK, envelope{"menu": items}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) contactHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Contact notes.ContactInput `json:"contact"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	result, err := app.notes.Contact(r.Context(), app.auth.ActorFrom(r), request.Contact)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"contact": result}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	data := envelope{
		"status": "available",
		"env":    app.config.Env,
	}
	if err := app.writeJSON(w, http.StatusOK, data, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func userResponse(user *auth.User, token string) envelope {
	user.Token = token
	return envelope{"user": user}
}
