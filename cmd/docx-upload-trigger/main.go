package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/docxconversionflow/internal/models"
	"github.com/Lllllllleong/docxconversionflow/internal/services"
)

var (
	triggerInstance *services.UploadTriggerFunction
	once            sync.Once
	initErr         error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ConvertUploadedDocx", convertUploadedDocx)
}

// main is required by the Go Functions Framework.
func main() {}

func convertUploadedDocx(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		triggerInstance, initErr = services.NewUploadTrigger(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "eventId", e.ID(), "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return triggerInstance.Process(ctx, gcsEvent)
}
