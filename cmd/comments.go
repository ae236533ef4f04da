package main

import (
	"context"
	"net/http"

	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/models"
)

func (app *application) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Comment notes.CommentInput `json:"comment"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	comment, err := app.notes.AddComment(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r), request.Comment)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusCreated, envelope{"comment": comment}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) editCommentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	var request struct {
		Comment struct {
			Body string `json:"body"`
		} `json:"comment"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	comment, err := app.notes.EditComment(r.Context(), app.auth.ActorFrom(r), id, request.Comment.Body)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"comment": comment}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	if err := app.notes.DeleteComment(r.Context(), app.auth.ActorFrom(r), id); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) approveCommentHandler(w http.ResponseWriter, r *http.Request) {
	app.moderateComment(w, r, app.notes.ApproveComment)
}

func (app *application) hideCommentHandler(w http.ResponseWriter, r *http.Request) {
	app.moderateComment(w, r, app.notes.HideComment)
}

type commentModeration func(ctx context.Context, actor models.Actor, id int64) (*models.Comment, error)

func (app *application) moderateComment(w http.ResponseWriter, r *http.Request, moderate commentModeration) {
	id, err := app.readIDParam(r)
	if err != nil {
		app.notFoundResponse(w, r)
		return
	}

	comment, err := moderate(r.Context(), app.auth.ActorFrom(r), id)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"comment": comment}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}
