package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/model"
	"github.com/debemdeboas/folio/internal/repository"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Create draft posts from a directory of Markdown files",
	Long: `Import reads every .md file of a directory, with its %%% front matter, and
creates each one on the backend as a draft. Categories and tags the backend
does not know yet are created. Posts whose slug already exists are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		posts, err := repository.NewFSPostRepository(args[0]).ReadAll()
		if err != nil {
			return err
		}
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			for _, p := range posts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", titleStyle.Render("would import"), p.Slug, p.Title)
			}
			return nil
		}

		user, _ := cmd.Flags().GetString("user")
		client, err := signIn(cmd.Context(), api.NewFromConfig(), user)
		if err != nil {
			return err
		}
		res, err := newImporter(client).run(cmd.Context(), posts, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d created, %d skipped, %d failed\n",
			titleStyle.Render("Import finished:"), res.created, res.skipped, res.failed)
		if res.failed > 0 {
			return fmt.Errorf("%d posts failed to import", res.failed)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("user", "", "username to sign in as; the password is read from $"+EnvPassword)
	importCmd.Flags().Bool("dry-run", false, "list the posts without creating them")

	rootCmd.AddCommand(importCmd)
}

// contentService is what import needs from the backend.
type contentService interface {
	Post(ctx context.Context, slug string) (*model.Post, error)
	CreatePost(ctx context.Context, in *api.PostInput) (*model.Post, error)
	Categories(ctx context.Context) ([]model.Category, error)
	Tags(ctx context.Context) ([]model.Tag, error)
	CreateCategory(ctx context.Context, name string) (*model.Category, error)
	CreateTag(ctx context.Context, name string) (*model.Tag, error)
}

type importer struct {
	backend    contentService
	categories map[string]int64
	tags       map[string]int64
}

type importResult struct {
	created, skipped, failed int
}

func newImporter(b contentService) *importer {
	return &importer{backend: b}
}

func nameKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (im *importer) load(ctx context.Context) error {
	cats, err := im.backend.Categories(ctx)
	if err != nil {
		return fmt.Errorf("listing categories: %w", err)
	}
	tags, err := im.backend.Tags(ctx)
	if err != nil {
		return fmt.Errorf("listing tags: %w", err)
	}
	im.categories = make(map[string]int64, len(cats))
	for _, c := range cats {
		im.categories[nameKey(c.Name)] = c.ID
	}
	im.tags = make(map[string]int64, len(tags))
	for _, t := range tags {
		im.tags[nameKey(t.Name)] = t.ID
	}
	return nil
}

func (im *importer) categoryID(ctx context.Context, name string) (int64, error) {
	if id, ok := im.categories[nameKey(name)]; ok {
		return id, nil
	}
	c, err := im.backend.CreateCategory(ctx, strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("creating category %q: %w", name, err)
	}
	im.categories[nameKey(name)] = c.ID
	return c.ID, nil
}

func (im *importer) tagID(ctx context.Context, name string) (int64, error) {
	if id, ok := im.tags[nameKey(name)]; ok {
		return id, nil
	}
	t, err := im.backend.CreateTag(ctx, strings.TrimSpace(name))
	if err != nil {
		return 0, fmt.Errorf("creating tag %q: %w", name, err)
	}
	im.tags[nameKey(name)] = t.ID
	return t.ID, nil
}

// input turns a parsed file into a draft submission.
func (im *importer) input(ctx context.Context, p model.Post) (*api.PostInput, error) {
	in := &api.PostInput{
		Title:   p.Title,
		Slug:    p.Slug,
		Content: p.Content,
		Excerpt: p.Excerpt,
		Draft:   true,
	}
	if p.Category != nil {
		id, err := im.categoryID(ctx, p.Category.Name)
		if err != nil {
			return nil, err
		}
		in.CategoryID = id
	}
	for i, t := range p.Tags {
		if i == model.MaxTags {
			break
		}
		id, err := im.tagID(ctx, t.Name)
		if err != nil {
			return nil, err
		}
		in.TagIDs = append(in.TagIDs, id)
	}
	return in, nil
}

func (im *importer) run(ctx context.Context, posts []model.Post, out io.Writer) (importResult, error) {
	var res importResult
	if err := im.load(ctx); err != nil {
		return res, err
	}

	for _, p := range posts {
		_, err := im.backend.Post(ctx, p.Slug)
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s %s already exists\n", warnStyle.Render("skip"), p.Slug)
			res.skipped++
			continue
		case !errors.Is(err, api.ErrNotFound):
			fmt.Fprintf(out, "%s %s: %v\n", errStyle.Render("fail"), p.Slug, err)
			res.failed++
			continue
		}

		in, err := im.input(ctx, p)
		if err == nil {
			_, err = im.backend.CreatePost(ctx, in)
		}
		if err != nil {
			fmt.Fprintf(out, "%s %s: %v\n", errStyle.Render("fail"), p.Slug, err)
			res.failed++
			continue
		}
		fmt.Fprintf(out, "%s %s\n", okStyle.Render("draft"), p.Slug)
		res.created++
	}
	return res, nil
}
