package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandURL(t *testing.T) {
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/List_of_Hindi_films_of_2023",
		ExpandURL("", "Hindi", 2023))
	assert.Equal(t,
		"http://127.0.0.1:8080/films/Tamil/1999",
		ExpandURL("http://127.0.0.1:8080/films/{category}/{year}", "Tamil", 1999))
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/List_of_American_films_of_2020",
		ExpandURL("  ", "American", 2020))
}

func TestExpandURL_EscapesCategory(t *testing.T) {
	assert.Equal(t,
		"https://en.wikipedia.org/wiki/List_of_A%2FB_films_of_2020",
		ExpandURL("", "A/B", 2020))
}

func TestDocumentOK(t *testing.T) {
	assert.True(t, Document{Status: StatusSuccess}.OK())
	assert.False(t, Document{Status: StatusNotFound}.OK())
	assert.False(t, Document{Status: StatusTransportError}.OK())
}
