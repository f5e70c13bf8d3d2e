package handler

import (
	"errors"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"canteen/internal/assets"
)

const multipartMemory = 8 << 20

var errNoFile = errors.New("no file part")

// limitBody caps the request at the upload limit plus room for form fields.
func (h *Handler) limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+(1<<20))
}

// formPhoto returns the multipart "photo" file and its validated extension.
// It returns errNoFile when the field is absent or has no filename.
func (h *Handler) formPhoto(c *gin.Context) (*multipart.FileHeader, string, error) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		return nil, "", err
	}
	fh, err := c.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) || (err == nil && fh.Filename == "") {
		return nil, "", errNoFile
	}
	if err != nil {
		return nil, "", err
	}
	if fh.Size > h.maxUpload {
		return nil, "", &http.MaxBytesError{Limit: h.maxUpload}
	}
	ext, err := assets.Ext(fh.Filename)
	if err != nil {
		return nil, "", err
	}
	return fh, ext, nil
}

// photoError writes the response for a formPhoto failure.
func photoError(c *gin.Context, err error) {
	var tooBig *http.MaxBytesError
	switch {
	case errors.As(err, &tooBig):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "File too large"})
	case errors.Is(err, errNoFile):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No file part"})
	case errors.Is(err, assets.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid filename"})
	case errors.Is(err, assets.ErrUnsupportedType):
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Only JPG/PNG allowed"})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid upload"})
	}
}

func (h *Handler) savePhoto(c *gin.Context, key string, fh *multipart.FileHeader, ext string) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return h.photos.Save(c.Request.Context(), key, ext, f)
}

func (h *Handler) uploadMenuPhoto(c *gin.Context) {
	h.limitBody(c)
	fh, ext, err := h.formPhoto(c)
	if err != nil {
		photoError(c, err)
		return
	}
	url, err := h.savePhoto(c, assets.MenuKey, fh, ext)
	if err != nil {
		h.internal(c, "save menu photo", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}

func (h *Handler) menuPhoto(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"photo": h.photoURL(c.Request.Context(), assets.MenuKey)})
}
