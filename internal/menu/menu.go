// Package menu builds the navigation shown to an actor.
package menu

import "github.com/siahsang/notes/models"

// Item is one menu entry. Title2 and URL2 hold an optional secondary link shown
// next to the first one, such as "Logout" beside the profile link.
type Item struct {
	Title  string `json:"title"`
	URL    string `json:"url"`
	Title2 string `json:"title2,omitempty"`
	URL2   string `json:"url2,omitempty"`
}

// Build returns the menu for actor. It is computed per request and shares no state.
func Build(actor models.Actor) []Item {
	items := []Item{
		{Title: "About", URL: "/about"},
		{Title: "Contact", URL: "/api/contact"},
	}

	if actor.CanAuthor() {
		items = append(items, Item{Title: "Add article", URL: "/api/articles"})
	}

	if actor.IsAnonymous() {
		return append(items, Item{Title: "Login", URL: "/api/users/login", Title2: "Register", URL2: "/api/users"})
	}

	return append(items, Item{Title: "Welcome, " + actor.Username, URL: "/api/user", Title2: "Logout", URL2: "/api/users/logout"})
}
