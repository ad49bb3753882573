package handlers

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"tabula/internal/middlewares"
	"tabula/internal/responses"
	"tabula/internal/services"
)

// MaxUploadSize bounds CSV uploads held in memory.
const MaxUploadSize = 64 << 20

func currentUser(c *gin.Context) (services.User, bool) {
	user, ok := middlewares.CurrentUser(c)
	if !ok {
		responses.Fail(c, http.StatusUnauthorized, nil, "Unauthorized")
	}
	return user, ok
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, fmt.Sprintf("Invalid %s format", name))
		return uuid.Nil, false
	}
	return id, true
}

func entryParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("entry"), 10, 64)
	if err != nil || id < 1 {
		responses.Fail(c, http.StatusBadRequest, err, "Invalid entry id")
		return 0, false
	}
	return id, true
}

// optionalUUID parses a query parameter that may be absent.
func optionalUUID(c *gin.Context, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, fmt.Sprintf("Invalid %s format", name))
		return nil, false
	}
	return &id, true
}

// readUpload reads the multipart "file" field and the delimiter sent with it.
func readUpload(c *gin.Context) (services.CsvUpload, bool) {
	header, err := c.FormFile("file")
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Failed to get file from request")
		return services.CsvUpload{}, false
	}
	if header.Size > MaxUploadSize {
		responses.Fail(c, http.StatusRequestEntityTooLarge, nil, "File is too large")
		return services.CsvUpload{}, false
	}

	src, err := header.Open()
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Failed to open file")
		return services.CsvUpload{}, false
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		responses.Fail(c, http.StatusBadRequest, err, "Failed to read file")
		return services.CsvUpload{}, false
	}
	return services.CsvUpload{
		FileName:  header.Filename,
		Content:   content,
		Delimiter: c.PostForm("delimiter"),
	}, true
}
