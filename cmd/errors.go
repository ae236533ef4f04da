package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mdobak/go-xerrors"

	"github.com/siahsang/notes/internal/auth"
	"github.com/siahsang/notes/internal/core"
	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/internal/policy"
	"github.com/siahsang/notes/internal/web"
)

type AppError struct {
	ErrorStack   error
	ErrorMessage string
	ErrorDetails map[string]string
}

func (app *application) badRequestResponse(w http.ResponseWriter, r *http.Request, appError *AppError) {
	app.errorResponse(w, r, http.StatusBadRequest, appError)
}

func (app *application) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusNotFound, &AppError{
		ErrorMessage: "The requested resource could not be found.",
	})
}

func (app *application) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	app.errorResponse(w, r, http.StatusMethodNotAllowed, &AppError{
		ErrorMessage: "The " + r.Method + " method is not supported for this resource.",
	})
}

func (app *application) failedValidationResponse(w http.ResponseWriter, r *http.Request, err error, details map[string]string) {
	app.errorResponse(w, r, http.StatusUnprocessableEntity, &AppError{
		ErrorStack:   err,
		ErrorMessage: "The request contains invalid fields.",
		ErrorDetails: details,
	})
}

func (app *application) forbiddenResponse(w http.ResponseWriter, r *http.Request, err error, reason string) {
	app.errorResponse(w, r, http.StatusForbidden, &AppError{
		ErrorStack:   err,
		ErrorMessage: "You do not have permission to perform this action.",
		ErrorDetails: map[string]string{"reason": reason},
	})
}

func (app *application) conflictResponse(w http.ResponseWriter, r *http.Request, err error, message string) {
	app.errorResponse(w, r, http.StatusConflict, &AppError{
		ErrorStack:   err,
		ErrorMessage: message,
	})
}

func (app *application) authenticationRequiredResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusUnauthorized, &AppError{
		ErrorStack:   err,
		ErrorMessage: "You must be authenticated to access this resource.",
	})
}

func (app *application) invalidAuthenticationTokenResponse(w http.ResponseWriter, r *http.Request, err error) {
	w.Header().Set("WWW-Authenticate", "Token")
	app.errorResponse(w, r, http.StatusUnauthorized, &AppError{
		ErrorStack:   err,
		ErrorMessage: "Invalid or missing authentication token.",
	})
}

func (app *application) invalidCredentialsResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusUnauthorized, &AppError{
		ErrorStack:   err,
		ErrorMessage: "Invalid credentials.",
	})
}

func (app *application) internalErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	app.errorResponse(w, r, http.StatusInternalServerError, &AppError{ErrorStack: err,
		ErrorMessage: "An internal server error occurred.",
	})
}

// serviceErrorResponse maps an error returned by the notes service to a response.
func (app *application) serviceErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *notes.ValidationError
		permissionErr *notes.PermissionError
	)

	switch {
	case errors.As(err, &validationErr):
		app.failedValidationResponse(w, r, err, validationErr.Errors)
	case errors.As(err, &permissionErr):
		if permissionErr.Reason == policy.ReasonAuthenticationRequired {
			app.authenticationRequiredResponse(w, r, err)
			return
		}
		app.forbiddenResponse(w, r, err, permissionErr.Reason)
	case errors.Is(err, auth.NotAuthenticatedUser):
		app.authenticationRequiredResponse(w, r, err)
	case errors.Is(err, notes.ErrInvalidCredentials):
		app.invalidCredentialsResponse(w, r, err)
	case errors.Is(err, core.NoRecordFound):
		app.notFoundResponse(w, r)
	case errors.Is(err, core.ErrCategoryInUse):
		app.conflictResponse(w, r, err, "The category is still used by articles.")
	case errors.Is(err, core.ErrDuplicatedSlug):
		app.conflictResponse(w, r, err, "An entry with the same slug already exists.")
	default:
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) errorResponse(w http.ResponseWriter, r *http.Request, status int, appError *AppError) {
	errorDetails := envelope{
		"errorMessage": appError.ErrorMessage,
		"errorDetails": appError.ErrorDetails,
	}

	var attrs []slog.Attr
	attrs = append(attrs, slog.String("request_id", web.RequestID(r)))
	attrs = append(attrs, slog.String("request_url", r.URL.String()))
	attrs = append(attrs, slog.String("request_method", r.Method))
	attrs = append(attrs, slog.Int("status", status))

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
		if appError.ErrorStack != nil {
			attrs = append(attrs, slog.String("stack", xerrors.Sprint(appError.ErrorStack)))
		}
	} else if appError.ErrorStack != nil {
		attrs = append(attrs, slog.String("error", appError.ErrorStack.Error()))
	}

	for key, valueData := range appError.ErrorDetails {
		attrs = append(attrs, slog.Any(key, valueData))
	}

	app.logger.LogAttrs(r.Context(), level, "ErrorStack in handling request", attrs...)

	err := app.writeJSON(w, status, errorDetails, nil)
	if err != nil {
		app.logger.Error(err.Error())
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (app *application) writeJSON(w http.ResponseWriter, status int, data envelope, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}

	// Append a newline to make it easier to view in terminal applications.
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(js); err != nil {
		app.logger.Error(err.Error())
		return err
	}

	return nil
}
