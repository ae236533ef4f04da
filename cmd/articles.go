package main

import (
	"net/http"

	"github.com/siahsang/notes/internal/filter"
	"github.com/siahsang/notes/internal/moderation"
	"github.com/siahsang/notes/internal/notes"
	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

// readPage reads limit and offset from the query string. ok is false when the
// response was already written.
func (app *application) readPage(w http.ResponseWriter, r *http.Request) (filter.Filter, bool) {
	v := validator.New()
	query := r.URL.Query()

	page := filter.NewFilter(
		app.readInt(query, "limit", int64(app.config.Content.PageSize), v),
		app.readInt(query, "offset", 0, v),
	)
	if filter.ValidateFilters(page, v); !v.IsValid() {
		app.failedValidationResponse(w, r, nil, v.Errors)
		return page, false
	}
	return page, true
}

func (app *application) writeArticlePage(w http.ResponseWriter, r *http.Request, f models.ArticleFilter, extra envelope) {
	page, ok := app.readPage(w, r)
	if !ok {
		return
	}

	result, err := app.notes.ListPublished(r.Context(), f, page)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	data := envelope{"articles": result.Articles, "metadata": result.Metadata}
	for key, value := range extra {
		data[key] = value
	}
	if err := app.writeJSON(w, http.StatusOK, data, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) listArticlesHandler(w http.ResponseWriter, r *http.Request) {
	app.writeArticlePage(w, r, models.ArticleFilter{}, nil)
}

func (app *application) latestArticlesHandler(w http.ResponseWriter, r *http.Request) {
	articles, err := app.notes.LatestPublished(r.Context())
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"articles": articles}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) showArticleHandler(w http.ResponseWriter, r *http.Request) {
	view, err := app.notes.GetArticle(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r))
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	data := envelope{
		"article":     view.Article,
		"comments":    view.Comments,
		"description": view.Description,
	}
	if err := app.writeJSON(w, http.StatusOK, data, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) createArticleHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Article notes.ArticleInput `json:"article"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	article, err := app.notes.CreateArticle(r.Context(), app.auth.ActorFrom(r), request.Article)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", "/api/articles/"+article.Slug)
	if err := app.writeJSON(w, http.StatusCreated, envelope{"article": article}, headers); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) updateArticleHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Article notes.ArticlePatch `json:"article"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	article, err := app.notes.UpdateArticle(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r), request.Article)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"article": article}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) deleteArticleHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.notes.DeleteArticle(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r)); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *application) publishArticleHandler(w http.ResponseWriter, r *http.Request) {
	app.changeArticleStatus(w, r, moderation.Publish)
}

func (app *application) unpublishArticleHandler(w http.ResponseWriter, r *http.Request) {
	app.changeArticleStatus(w, r, moderation.Unpublish)
}

func (app *application) changeArticleStatus(w http.ResponseWriter, r *http.Request, event moderation.ArticleEvent) {
	article, err := app.notes.SetArticleStatus(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r), event)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"article": article}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) bulkStatusHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		IDs    []int64               `json:"ids"`
		Status *models.ArticleStatus `json:"status"`
	}
	if !app.readBody(w, r, &request) {
		return
	}
	if request.Status == nil {
		app.failedValidationResponse(w, r, nil, map[string]string{"status": "must be provided"})
		return
	}

	updated, err := app.notes.BulkSetStatus(r.Context(), app.auth.ActorFrom(r), request.IDs, *request.Status)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"updated": updated, "status": *request.Status}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}
