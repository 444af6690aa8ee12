package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"clubhub/internal/apperr"
	"clubhub/internal/cloudinary"
)

const maxUploadSize = 100 << 20

func (h *handler) dashboard(c *gin.Context) {
	v, err := h.Dashboard.Get(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

type uploadResponse struct {
	URL          string                  `json:"url"`
	PublicID     string                  `json:"publicId"`
	ResourceType cloudinary.ResourceType `json:"resourceType"`
	Bytes        int                     `json:"bytes"`
}

func (h *handler) upload(c *gin.Context) {
	if h.Uploader == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, envelope{Message: "media uploads are not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	rt := cloudinary.ResourceType(c.DefaultPostForm("resourceType", string(cloudinary.Image)))
	if !rt.Valid() {
		fail(c, apperr.Validation("resourceType must be one of image, video, raw"))
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fail(c, apperr.Validation("file is required"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer f.Close()

	res, err := h.Uploader.Upload(c.Request.Context(), f, fh.Filename, rt)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "uploaded", uploadResponse{URL: res.SecureURL, PublicID: res.PublicID, ResourceType: res.ResourceType, Bytes: res.Bytes})
}
