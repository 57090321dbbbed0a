package main

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/docxconversionflow/internal/models"
	"github.com/Lllllllleong/docxconversionflow/internal/services"
)

var (
	workerGateway *services.ConvertGatewayFunction
	workerOnce    sync.Once
	workerInitErr error

	jobGateway *services.ConvertGatewayFunction
	jobOnce    sync.Once
	jobInitErr error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("ConvertDocxToPdf", services.NewCallableHandler(convertViaWorker).ServeHTTP)
	functions.HTTP("ConvertDocxToPdfCloud", services.NewCallableHandler(convertViaJobAPI).ServeHTTP)
}

// main is required by the Go Functions Framework.
func main() {}

func convertViaWorker(ctx context.Context, req models.ConvertRequest) (*models.ConvertResponse, error) {
	workerOnce.Do(func() {
		workerGateway, workerInitErr = services.NewConvertGateway(context.Background())
	})
	if workerInitErr != nil {
		slog.Error("Critical error during function initialization", "function", "ConvertDocxToPdf", "error", workerInitErr)
		return nil, workerInitErr
	}
	return workerGateway.Process(ctx, req)
}

func convertViaJobAPI(ctx context.Context, req models.ConvertRequest) (*models.ConvertResponse, error) {
	jobOnce.Do(func() {
		jobGateway, jobInitErr = services.NewCloudConvertGateway(context.Background())
	})
	if jobInitErr != nil {
		slog.Error("Critical error during function initialization", "function", "ConvertDocxToPdfCloud", "error", jobInitErr)
		return nil, jobInitErr
	}
	return jobGateway.Process(ctx, req)
}
