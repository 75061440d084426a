package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/dvloznov/expense-tracker/internal/gcsuploader"
	"github.com/dvloznov/expense-tracker/internal/logger"
	"github.com/gabriel-vasile/mimetype"
)

var cli struct {
	Bucket string `env:"GCS_BUCKET" help:"${env} - Receipt archive bucket" required:""`
	User   string `required:"" help:"User the receipt belongs to."`
	File   string `arg:"" type:"existingfile" help:"Path to the receipt image."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("upload-receipt"),
		kong.Description("Archive a receipt image in GCS under the user's prefix."),
	)

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	data, err := os.ReadFile(cli.File)
	if err != nil {
		log.Fatal().Err(err).Str("file", cli.File).Msg("Failed to read file")
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") && !mt.Is("application/pdf") {
		log.Fatal().Str("mime_type", mt.String()).Msg("File is not a supported receipt image")
	}

	archive, err := gcsuploader.NewReceiptArchive(ctx, cli.Bucket)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create GCS client")
	}
	defer archive.Close()

	log.Info().
		Str("bucket", cli.Bucket).
		Str("user_id", cli.User).
		Str("file", filepath.Base(cli.File)).
		Str("mime_type", mt.String()).
		Msg("Uploading receipt to GCS")

	uri, err := archive.SaveReceiptImage(ctx, cli.User, data, mt.String(), mt.Extension())
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", cli.File, uri)
}
