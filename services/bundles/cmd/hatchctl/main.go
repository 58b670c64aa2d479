package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	objstore "hatchd/pkg/s3"
	"hatchd/services/bundles"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "hatchctl",
		Short:         "Utility for managing hatchd template bundles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newBundlesCommand())
	return cmd
}

func newBundlesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bundles",
		Short: "Bundle build and import operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newBundlesBuildCommand())
	cmd.AddCommand(newBundlesImportCommand())
	return cmd
}

func newBundlesBuildCommand() *cobra.Command {
	var (
		sourceDir string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Create a signed bundle from a source directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundles.NewSignerFromEnv()
			if err != nil {
				return err
			}
			_, err = bundles.Build(ctx, bundles.BuildConfig{
				SourceDir: sourceDir,
				Output:    output,
				Signer:    signer,
				Stdout:    os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&sourceDir, "source-dir", "", "Directory with templates/ and boot/ subdirectories")
	cmd.Flags().StringVar(&output, "output", "", "Destination bundle file (tar.zst)")
	_ = cmd.MarkFlagRequired("source-dir")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func newBundlesImportCommand() *cobra.Command {
	var (
		bundleFile     string
		templateBucket string
		imagesBucket   string
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Verify a signed bundle and upload its contents to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			signer, err := bundles.NewSignerFromEnv()
			if err != nil {
				return err
			}
			s3Client, err := objstore.NewClientFromEnv()
			if err != nil {
				return fmt.Errorf("s3 client: %w", err)
			}
			_, err = bundles.Import(ctx, bundles.ImportConfig{
				BundlePath:     bundleFile,
				TemplateBucket: templateBucket,
				ImagesBucket:   imagesBucket,
				S3:             s3Client,
				Signer:         signer,
				Stdout:         os.Stdout,
			})
			return err
		},
	}

	cmd.Flags().StringVar(&bundleFile, "file", "", "Path to the bundle tar.zst")
	cmd.Flags().StringVar(&templateBucket, "template-bucket", "hatchd-templates", "Bucket for userdata template overrides")
	cmd.Flags().StringVar(&imagesBucket, "images-bucket", "", "Optional bucket for boot files")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
