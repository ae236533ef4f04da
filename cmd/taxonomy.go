package main

import (
	"net/http"
	"net/url"

	"github.com/siahsang/notes/internal/validator"
	"github.com/siahsang/notes/models"
)

type termRequest struct {
	Name string `json:"name"`
}

func (app *application) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	v := validator.New()
	selected := app.readInt(r.URL.Query(), "selected", 0, v)
	if !v.IsValid() {
		app.failedValidationResponse(w, r, nil, v.Errors)
		return
	}

	list, err := app.notes.ListCategories(r.Context(), selected)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"categories": list.Categories, "selected": list.Selected}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Category termRequest `json:"category"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	category, err := app.notes.CreateCategory(r.Context(), app.auth.ActorFrom(r), request.Category.Name)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusCreated, envelope{"category": category}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) renameCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Category termRequest `json:"category"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	category, err := app.notes.RenameCategory(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r), request.Category.Name)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"category": category}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) deleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.notes.DeleteCategory(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r)); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// categoryArticlesHandler lists a category's published articles. Links using a
// slug the category had before a rename are redirected to the current one.
func (app *application) categoryArticlesHandler(w http.ResponseWriter, r *http.Request) {
	slug := app.readSlugParam(r)
	category, err := app.notes.ResolveCategory(r.Context(), slug)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	if category.Slug != slug {
		app.redirectPermanently(w, r, "/api/categories/"+url.PathEscape(category.Slug)+"/articles")
		return
	}

	app.writeArticlePage(w, r, models.ArticleFilter{CategorySlug: category.Slug}, envelope{"category": category})
}

func (app *application) listTagsHandler(w http.ResponseWriter, r *http.Request) {
	tags, err := app.notes.ListTags(r.Context())
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"tags": tags}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) createTagHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Tag termRequest `json:"tag"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	tag, err := app.notes.CreateTag(r.Context(), app.auth.ActorFrom(r), request.Tag.Name)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusCreated, envelope{"tag": tag}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) renameTagHandler(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Tag termRequest `json:"tag"`
	}
	if !app.readBody(w, r, &request) {
		return
	}

	tag, err := app.notes.RenameTag(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r), request.Tag.Name)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}

	if err := app.writeJSON(w, http.StatusOK, envelope{"tag": tag}, nil); err != nil {
		app.internalErrorResponse(w, r, err)
	}
}

func (app *application) deleteTagHandler(w http.ResponseWriter, r *http.Request) {
	if err := app.notes.DeleteTag(r.Context(), app.auth.ActorFrom(r), app.readSlugParam(r)); err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tagArticlesHandler is categoryArticlesHandler for tags. Stale slugs redirect
// to the tag route.
func (app *application) tagArticlesHandler(w http.ResponseWriter, r *http.Request) {
	slug := app.readSlugParam(r)
	tag, err := app.notes.ResolveTag(r.Context(), slug)
	if err != nil {
		app.serviceErrorResponse(w, r, err)
		return
	}
	if tag.Slug != slug {
		app.redirectPermanently(w, r, "/api/tags/"+url.PathEscape(tag.Slug)+"/articles")
		return
	}

	app.writeArticlePage(w, r, models.ArticleFilter{TagSlug: tag.Slug}, envelope{"tag": tag})
}

func (app *application) redirectPermanently(w http.ResponseWriter, r *http.Request, path string) {
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, path, http.StatusMovedPermanently)
}
