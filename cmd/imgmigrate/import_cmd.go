package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"imgmigrate/internal/config"
	"imgmigrate/internal/models"
)

// postImportRecord is one JSONL line of a standalone post import.
type postImportRecord struct {
	ID           int64  `json:"id"`
	DiscussionID int64  `json:"discussion_id"`
	Number       *int   `json:"number"`
	Type         string `json:"type"`
	Content      string `json:"content"`
	Rendered     string `json:"rendered"`
}

type importResult struct {
	Imported int `json:"imported" yaml:"imported"`
}

type postInserter interface {
	InsertPost(ctx context.Context, post models.Post) error
}

func newImportCmd(cfg *config.Config, out *outputMode) *cobra.Command {
	var inputPath string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load posts from a JSONL file into a standalone database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if inputPath == "" {
				return errors.New("--input is required")
			}
			f, err := os.Open(inputPath)
			if err != nil {
				return err
			}
			defer f.Close()

			posts, err := readPostRecords(f)
			if err != nil {
				return err
			}

			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := importPosts(cmd.Context(), st, posts)
			if err != nil {
				return err
			}
			if out.structured() {
				return out.write(cmd.OutOrStdout(), importResult{Imported: n})
			}
			return writePlain(cmd.OutOrStdout(), "imported: %d\n", n)
		},
	}

	cmd.Flags().StringVarP(&inputPath, "input", "i", "", "input JSONL file")
	return cmd
}

func readPostRecords(r io.Reader) ([]models.Post, error) {
	var posts []models.Post
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec postImportRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if rec.ID <= 0 || rec.DiscussionID <= 0 {
			return nil, fmt.Errorf("line %d: id and discussion_id are required", lineNum)
		}
		posts = append(posts, models.Post{
			ID:              rec.ID,
			DiscussionID:    rec.DiscussionID,
			Number:          rec.Number,
			Type:            models.PostType(rec.Type),
			RawContent:      rec.Content,
			RenderedContent: rec.Rendered,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	if len(posts) == 0 {
		return nil, errors.New("no records found in input file")
	}
	return posts, nil
}

func importPosts(ctx context.Context, dst postInserter, posts []models.Post) (int, error) {
	for i, post := range posts {
		if err := dst.InsertPost(ctx, post); err != nil {
			return i, fmt.Errorf("import post #%d: %w", post.ID, err)
		}
	}
	return len(posts), nil
}
