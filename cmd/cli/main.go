package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	serverURL    string
	serverConfig string
	noAutoStart  bool
	rootCmd      = &cobra.Command{
		Use:   "fetchvideo",
		Short: "fetchvideo CLI - HLS playlist downloader",
		Long:  `A command-line interface for downloading HLS (M3U8) playlists through the fetchvideo server.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "Server URL")
	rootCmd.PersistentFlags().StringVar(&serverConfig, "config", "", "Config file passed to an auto-started server")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(recentCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(logsCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Start downloading an M3U8 playlist",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var task taskView
		exitOnError(newAPIClient(serverURL).do(http.MethodPost, "/api/v1/tasks", downloadPayload(cmd, args[0]), &task))
		printStarted(task)
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a video file, or a playlist when the URL is an M3U8",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var task taskView
		exitOnError(newAPIClient(serverURL).do(http.MethodPost, "/api/v1/downloads", downloadPayload(cmd, args[0]), &task))
		printStarted(task)
	},
}

// downloadPayload builds a download request from the --title and --quality flags
func downloadPayload(cmd *cobra.Command, rawURL string) map[string]string {
	title, _ := cmd.Flags().GetString("title")
	quality, _ := cmd.Flags().GetString("quality")

	payload := map[string]string{"url": rawURL}
	if title != "" {
		payload["title"] = title
	}
	if quality != "" {
		payload["quality"] = quality
	}
	return payload
}

func printStarted(task taskView) {
	fmt.Printf("Download started!\n")
	fmt.Printf("ID:       %s\n", task.ID)
	fmt.Printf("Kind:     %s\n", task.Kind)
	fmt.Printf("Title:    %s\n", task.VideoData.Title)
	fmt.Printf("Quality:  %s\n", task.VideoData.Quality)
	fmt.Printf("Segments: %d\n", task.TotalSegments)
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the most recent downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		limit, _ := cmd.Flags().GetInt("limit")

		var result struct {
			Downloads []taskView `json:"downloads"`
		}
		path := fmt.Sprintf("/api/v1/downloads/recent?limit=%d", limit)
		exitOnError(newAPIClient(serverURL).do(http.MethodGet, path, nil, &result))
		printTasks(result.Downloads)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List retained tasks",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/tasks"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var result struct {
			Tasks []taskView `json:"tasks"`
		}
		exitOnError(newAPIClient(serverURL).do(http.MethodGet, path, nil, &result))
		printTasks(result.Tasks)
	},
}

func printTasks(tasks []taskView) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tTITLE\tSTATUS\tPROGRESS\tFAILED\tSTARTED")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d (%d%%)\t%d\t%s\n",
			truncate(t.ID, 8),
			t.Kind,
			truncate(t.VideoData.Title, 32),
			t.Status,
			t.CurrentIndex, t.TotalSegments, t.Percent,
			t.Failed,
			t.StartTime.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show task statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats map[string]interface{}
		exitOnError(newAPIClient(serverURL).do(http.MethodGet, "/api/v1/tasks/stats", nil, &stats))

		fmt.Println("Task Statistics:")
		fmt.Printf("  Total:       %v\n", stats["total"])
		fmt.Printf("  Downloading: %v\n", stats["downloading"])
		fmt.Printf("  Completed:   %v\n", stats["completed"])
		fmt.Printf("  Cancelled:   %v\n", stats["cancelled"])
		fmt.Printf("  Error:       %v\n", stats["error"])
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get task details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		verbose, _ := cmd.Flags().GetBool("segments")

		var t taskView
		exitOnError(newAPIClient(serverURL).do(http.MethodGet, "/api/v1/tasks/"+url.PathEscape(args[0]), nil, &t))

		fmt.Printf("Task Details:\n")
		fmt.Printf("  ID:       %s\n", t.ID)
		fmt.Printf("  URL:      %s\n", t.VideoData.URL)
		fmt.Printf("  Title:    %s\n", t.VideoData.Title)
		fmt.Printf("  Quality:  %s\n", t.VideoData.Quality)
		fmt.Printf("  Status:   %s\n", t.Status)
		fmt.Printf("  Progress: %d/%d (%d%%), %d failed\n", t.CurrentIndex, t.TotalSegments, t.Percent, t.Failed)
		fmt.Printf("  Started:  %s\n", t.StartTime.Local().Format(time.RFC3339))
		if t.EndTime != nil {
			fmt.Printf("  Ended:    %s\n", t.EndTime.Local().Format(time.RFC3339))
		}
		if t.Error != "" {
			fmt.Printf("  Error:    %s\n", t.Error)
		}

		if verbose {
			fmt.Println("  Segments:")
			for _, s := range t.DownloadedSegments {
				if s.Error != "" {
					fmt.Printf("    %5d  ERROR %s\n", s.Index, s.Error)
				} else {
					fmt.Printf("    %5d  %s\n", s.Index, s.Filename)
				}
			}
		}
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a downloading task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		exitOnError(newAPIClient(serverURL).do(http.MethodPost, "/api/v1/tasks/"+url.PathEscape(args[0])+"/cancel", nil, nil))
		fmt.Println("Task cancelled successfully")
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [url]",
	Short: "Describe a playlist without downloading it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var info struct {
			Kind          string  `json:"kind"`
			Title         string  `json:"title"`
			Quality       string  `json:"quality"`
			SegmentCount  int     `json:"segment_count"`
			TotalDuration float64 `json:"total_duration"`
			Closed        bool    `json:"closed"`
			Encrypted     bool    `json:"encrypted"`
			Variants      []struct {
				URL        string `json:"url"`
				Bandwidth  uint32 `json:"bandwidth"`
				Resolution string `json:"resolution"`
				Quality    string `json:"quality"`
			} `json:"variants"`
		}
		exitOnError(newAPIClient(serverURL).do(http.MethodPost, "/api/v1/playlists/inspect", map[string]string{"url": args[0]}, &info))

		fmt.Printf("Kind:     %s\n", info.Kind)
		fmt.Printf("Title:    %s\n", info.Title)
		fmt.Printf("Quality:  %s\n", info.Quality)
		if info.Kind == "master" {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "QUALITY\tRESOLUTION\tBANDWIDTH\tURL")
			for _, v := range info.Variants {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", v.Quality, v.Resolution, v.Bandwidth, v.URL)
			}
			w.Flush()
			return
		}
		fmt.Printf("Segments: %d (%.1fs)\n", info.SegmentCount, info.TotalDuration)
		fmt.Printf("Closed:   %t\n", info.Closed)
		fmt.Printf("Encrypted: %t\n", info.Encrypted)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [id]",
	Short: "Stream live task progress",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		wsURL, err := eventsURL(serverURL, args)
		exitOnError(err)

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		exitOnError(err)
		defer conn.Close()

		for {
			var event struct {
				Type          string `json:"type"`
				TaskID        string `json:"task_id"`
				Title         string `json:"title"`
				Status        string `json:"status"`
				CurrentIndex  int    `json:"current_index"`
				TotalSegments int    `json:"total_segments"`
				Percent       int    `json:"percent"`
				Failed        int    `json:"failed"`
				Error         string `json:"error"`
			}
			if err := conn.ReadJSON(&event); err != nil {
				exitOnError(err)
			}

			line := fmt.Sprintf("%s  %-14s %-12s %3d%%  %d/%d  failed=%d  %s",
				truncate(event.TaskID, 8), event.Type, event.Status,
				event.Percent, event.CurrentIndex, event.TotalSegments, event.Failed, event.Title)
			if event.Error != "" {
				line += "  error=" + event.Error
			}
			fmt.Println(line)

			if len(args) == 1 && event.Type == "task_finished" {
				return
			}
		}
	},
}

// eventsURL turns the server URL into the events websocket URL
func eventsURL(base string, args []string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/api/v1/events"
	if len(args) == 1 {
		u.RawQuery = url.Values{"task_id": {args[0]}}.Encode()
	}
	return u.String(), nil
}

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show today's task or error log",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		category := "task"
		if len(args) == 1 {
			category = args[0]
		}
		limit, _ := cmd.Flags().GetInt("limit")
		query, _ := cmd.Flags().GetString("query")

		path := fmt.Sprintf("/api/v1/logs/%s?limit=%d", url.PathEscape(category), limit)
		if query != "" {
			path = fmt.Sprintf("/api/v1/logs/%s/search?limit=%d&q=%s", url.PathEscape(category), limit, url.QueryEscape(query))
		}

		var result struct {
			Entries []struct {
				Timestamp string                 `json:"timestamp"`
				Level     string                 `json:"level"`
				Message   string                 `json:"message"`
				Fields    map[string]interface{} `json:"fields"`
			} `json:"entries"`
		}
		exitOnError(newAPIClient(serverURL).do(http.MethodGet, path, nil, &result))

		for _, e := range result.Entries {
			fmt.Printf("%s %-5s %s", e.Timestamp, strings.ToUpper(e.Level), e.Message)
			if id, ok := e.Fields["task_id"]; ok {
				fmt.Printf(" task_id=%v", id)
			}
			fmt.Println()
		}
	},
}

func init() {
	addCmd.Flags().StringP("title", "t", "", "Title for the download (derived from the URL by default)")
	addCmd.Flags().StringP("quality", "q", "", "Quality label (guessed from the URL by default)")
	downloadCmd.Flags().StringP("title", "t", "", "File name without extension (derived from the URL by default)")
	downloadCmd.Flags().StringP("quality", "q", "", "Quality label (guessed from the URL by default)")
	recentCmd.Flags().IntP("limit", "n", 10, "Number of downloads")
	listCmd.Flags().StringP("status", "s", "", "Filter by status (downloading, completed, cancelled, error)")
	getCmd.Flags().Bool("segments", false, "Print every segment result")
	logsCmd.Flags().IntP("limit", "n", 50, "Number of entries")
	logsCmd.Flags().String("query", "", "Only entries containing this text")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
