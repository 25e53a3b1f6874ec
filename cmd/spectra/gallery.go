package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/spectra-gallery/spectra/internal/api"
	"github.com/spectra-gallery/spectra/internal/model"
)

func postsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "posts",
		Short: "Browse and upload gallery posts",
	}

	var q api.PostQuery
	var minScore int
	list := &cobra.Command{
		Use:   "list",
		Short: "List posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("min-score") {
				q.MinScore = &minScore
			}
			page, err := a.API.ListPosts(cmd.Context(), q)
			if err != nil {
				return err
			}
			writePosts(cmd.OutOrStdout(), page)
			return nil
		},
	}
	list.Flags().IntVar(&q.Page, "page", 1, "page number")
	list.Flags().IntVar(&q.Limit, "limit", 20, "posts per page")
	list.Flags().StringVar(&q.Tags, "tags", "", "space or comma separated tags, all required")
	list.Flags().StringVar(&q.SortBy, "sort", "", "date, score, id or random")
	list.Flags().StringVar(&q.Order, "order", "", "asc or desc")
	list.Flags().StringVar(&q.Uploader, "uploader", "", "only posts by this username")
	list.Flags().IntVar(&minScore, "min-score", 0, "only posts scoring at least this much")

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			post, err := a.API.GetPost(cmd.Context(), a.Session.Token(), id)
			if err != nil {
				return err
			}
			writePost(cmd.OutOrStdout(), post)
			return nil
		},
	}

	var upload api.NewPost
	var uploadTags string
	up := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload an image as a new post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			upload.Tags = splitList(uploadTags)
			var post model.Post
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				if _, err := f.Seek(0, io.SeekStart); err != nil {
					return err
				}
				post, err = a.API.CreatePost(ctx, token, api.Upload{Filename: filepath.Base(args[0]), Content: f}, upload)
				return err
			})
			if err != nil {
				return err
			}
			writePost(cmd.OutOrStdout(), post)
			return nil
		},
	}
	up.Flags().StringVar(&upload.Title, "title", "", "post title")
	up.Flags().StringVar(&upload.Description, "description", "", "post description")
	up.Flags().StringVar(&uploadTags, "tags", "", "comma separated tags")

	cmd.AddCommand(list, show, up)
	return cmd
}

func tagsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "tags",
		Short: "List tags with post counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			tags, err := a.API.ListTags(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tPOSTS")
			for _, tag := range tags {
				fmt.Fprintf(tw, "%s\t%d\n", tag.Name, tag.PostCount)
			}
			return tw.Flush()
		},
	}
}

func commentsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "Read or write post comments",
	}
	list := &cobra.Command{
		Use:   "list <post-id>",
		Short: "List the comments of a post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			page, err := a.API.ListComments(cmd.Context(), a.Session.Token(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(page.Data) == 0 {
				printf(out, "No comments yet\n")
				return nil
			}
			for _, comment := range page.Data {
				indent := ""
				if comment.ParentCommentID != nil {
					indent = "  ↳ "
				}
				printf(out, "%s#%d %s (%+d): %s\n", indent, comment.ID, comment.Author(), comment.Upvotes-comment.Downvotes, comment.Content)
			}
			return nil
		},
	}

	var replyTo int64
	add := &cobra.Command{
		Use:   "add <post-id> <text>...",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			var parent *int64
			if replyTo > 0 {
				parent = &replyTo
			}
			var created model.Comment
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				created, err = a.API.CreateComment(ctx, token, id, strings.Join(args[1:], " "), parent)
				return err
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Comment #%d added to post %d\n", created.ID, id)
			return nil
		},
	}
	add.Flags().Int64Var(&replyTo, "reply-to", 0, "id of the comment being answered")

	cmd.AddCommand(list, add)
	return cmd
}

func voteCmd(c *cli) *cobra.Command {
	var target api.VoteTarget
	cmd := &cobra.Command{
		Use:   "vote up|down",
		Short: "Vote on a post or comment; repeating a vote removes it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value int
			switch args[0] {
			case "up", "+1", "1":
				value = 1
			case "down", "-1":
				value = -1
			default:
				return fmt.Errorf("vote must be up or down, got %q", args[0])
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			var result model.VoteResult
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				result, err = a.API.CastVote(ctx, token, target, value)
				return err
			})
			if err != nil {
				return err
			}
			mine := "none"
			switch result.UserVote {
			case 1:
				mine = "up"
			case -1:
				mine = "down"
			}
			printf(cmd.OutOrStdout(), "▲ %d  ▼ %d  your vote: %s\n", result.Upvotes, result.Downvotes, mine)
			return nil
		},
	}
	cmd.Flags().Int64Var(&target.PostID, "post", 0, "post id")
	cmd.Flags().Int64Var(&target.CommentID, "comment", 0, "comment id")
	cmd.MarkFlagsMutuallyExclusive("post", "comment")
	cmd.MarkFlagsOneRequired("post", "comment")
	return cmd
}

func adminCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Moderation commands (moderator, admin or owner only)",
	}

	var page, limit int
	list := &cobra.Command{
		Use:   "posts",
		Short: "List posts for moderation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			var out model.PostPage
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				out, err = a.API.AdminListPosts(ctx, token, page, limit)
				return err
			})
			if err != nil {
				return err
			}
			writePosts(cmd.OutOrStdout(), out)
			return nil
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number")
	list.Flags().IntVar(&limit, "limit", 50, "posts per page")

	del := &cobra.Command{
		Use:   "delete <post-id>",
		Short: "Delete a post and its media",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				return a.API.AdminDeletePost(ctx, token, id)
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "Deleted post %d\n", id)
			return nil
		},
	}

	var batchTags string
	batchUpload := &cobra.Command{
		Use:   "batch-upload <file>...",
		Short: "Upload several images with the same tags",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]*os.File, 0, len(args))
			defer func() {
				for _, f := range files {
					f.Close()
				}
			}()
			for _, path := range args {
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				files = append(files, f)
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			var result model.BatchUploadResult
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				uploads := make([]api.Upload, 0, len(files))
				for _, f := range files {
					if _, err := f.Seek(0, io.SeekStart); err != nil {
						return err
					}
					uploads = append(uploads, api.Upload{Filename: filepath.Base(f.Name()), Content: f})
				}
				result, err = a.API.AdminBatchUpload(ctx, token, uploads, splitList(batchTags))
				return err
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printf(out, "Uploaded %d of %d files\n", len(result.Successful), len(args))
			for _, post := range result.Successful {
				printf(out, "  #%d %s\n", post.ID, post.Filename)
			}
			for _, failure := range result.Failed {
				printf(out, "  failed %s: %s\n", failure.Filename, failure.Error)
			}
			return nil
		},
	}
	batchUpload.Flags().StringVar(&batchTags, "tags", "", "comma separated tags applied to every file")

	var retag, action string
	batchTagCmd := &cobra.Command{
		Use:   "batch-tags <post-id>...",
		Short: "Add, remove or set tags on several posts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, raw := range args {
				id, err := parseID(raw)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			a, err := c.open(cmd, openOptions{})
			if err != nil {
				return err
			}
			var result model.BatchTagResult
			err = authorized(cmd.Context(), a, func(ctx context.Context, token string) error {
				result, err = a.API.AdminBatchTags(ctx, token, ids, splitList(retag), action)
				return err
			})
			if err != nil {
				return err
			}
			printf(cmd.OutOrStdout(), "%s Updated %d posts\n", result.Message, result.UpdatedPostsCount)
			return nil
		},
	}
	batchTagCmd.Flags().StringVar(&retag, "tags", "", "comma separated tags")
	batchTagCmd.Flags().StringVar(&action, "action", api.TagsAdd, "add, remove or set")

	cmd.AddCommand(list, del, batchUpload, batchTagCmd)
	return cmd
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

func writePosts(w io.Writer, page model.PostPage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSCORE\tCOMMENTS\tTAGS")
	for _, post := range page.Data {
		title := post.Title
		if title == "" {
			title = post.Filename
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", post.ID, title, post.Score(), post.CommentCount, strings.Join(post.TagNames(), ", "))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "page %d of %d (%d posts)\n", page.CurrentPage, page.TotalPages, page.TotalItems)
}

func writePost(w io.Writer, post model.Post) {
	title := post.Title
	if title == "" {
		title = post.Filename
	}
	fmt.Fprintf(w, "#%d %s\n", post.ID, title)
	if post.Uploader != nil {
		fmt.Fprintf(w, "uploaded by %s on %s\n", post.Uploader.Username, post.UploadedAt)
	}
	if post.Description != "" {
		fmt.Fprintf(w, "%s\n", post.Description)
	}
	fmt.Fprintf(w, "score %d (▲ %d ▼ %d), %d comments\n", post.Score(), post.Upvotes, post.Downvotes, post.CommentCount)
	if tags := post.TagNames(); len(tags) > 0 {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(tags, ", "))
	}
	if post.ImageURL != "" {
		fmt.Fprintf(w, "image: %s\n", post.ImageURL)
	}
}
