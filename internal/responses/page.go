package responses

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
)

type PageLinks struct {
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// PageResponse is the envelope of every paginated listing.
type PageResponse struct {
	Links      PageLinks   `json:"links"`
	Count      int64       `json:"count"`
	TotalPages int         `json:"total_pages"`
	Results    interface{} `json:"results"`
}

func Paginated(c *gin.Context, number, totalPages int, count int64, results interface{}) {
	resp := PageResponse{
		Count:      count,
		TotalPages: totalPages,
		Results:    results,
	}
	if number < totalPages {
		next := pageURL(c.Request, number+1)
		resp.Links.Next = &next
	}
	if number > 1 {
		prev := pageURL(c.Request, number-1)
		resp.Links.Previous = &prev
	}
	c.JSON(http.StatusOK, resp)
}

// pageURL is the absolute URL of the current request with another page.
func pageURL(r *http.Request, page int) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	params := r.URL.Query()
	params.Set("page", strconv.Itoa(page))
	u := url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawQuery: params.Encode(),
	}
	return u.String()
}
