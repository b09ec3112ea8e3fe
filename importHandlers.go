package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"bitbucket.org/mmdatafocus/warehouse_backend/models"
	"github.com/gin-gonic/gin"
)

// multipart overhead on top of the file itself
const maxUploadBodySize = 11 << 20

type importFunc func(ctx context.Context, file models.ImportFile, actorId *int) (*models.ImportResult, error)

// bulkImportHandler reads the "file" form field and runs one all-or-nothing import.
// A rejected file answers 422 with the missing columns or the per-row errors.
func bulkImportHandler(referenceType string, run importFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBodySize)
		header, err := c.FormFile("file")
		if err != nil {
			respondError(c, "bulkImportHandler", fmt.Errorf("%w: multipart field \"file\" is required", models.ErrInvalidRow))
			return
		}
		f, err := header.Open()
		if err != nil {
			respondError(c, "bulkImportHandler", err)
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			respondError(c, "bulkImportHandler", err)
			return
		}

		result, err := run(c.Request.Context(), models.ImportFile{Name: header.Filename, Data: data}, actorFromRequest(c).Id)
		if err != nil {
			respondError(c, "bulkImportHandler", err)
			return
		}
		recordHistory(c, models.HistoryActionImport, referenceType, 0, nil, result,
			fmt.Sprintf("Imported %s file %s: %d created, %d updated", result.Kind, header.Filename, result.Created, result.Updated))
		c.JSON(http.StatusOK, result)
	}
}
