package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/alecthomas/kong"

	"telegram-proxy/internal/botclient"
)

// CLI is the tgsend command line.
type CLI struct {
	Proxy    string        `kong:"required,help='Proxy base URL, e.g. https://proxy.example.com.',env='TGSEND_PROXY'"`
	Token    string        `kong:"required,help='Bot token from BotFather.',env='TGSEND_TOKEN'"`
	ChatID   string        `kong:"required,name='chat-id',help='Target chat ID.',env='TGSEND_CHAT_ID'"`
	Timeout  time.Duration `kong:"default='60s',help='Overall request timeout.'"`
	LogLevel string        `kong:"default='warn',enum='debug,info,warn,error',help='Log level.'"`

	Message  MessageCmd `kong:"cmd,help='Send a text message.'"`
	Document MediaCmd   `kong:"cmd,help='Send a document.'"`
	Photo    MediaCmd   `kong:"cmd,help='Send a photo.'"`
	Audio    MediaCmd   `kong:"cmd,help='Send an audio file.'"`
	Video    MediaCmd   `kong:"cmd,help='Send a video.'"`
}

// MessageCmd sends a text message.
type MessageCmd struct {
	Text []string `kong:"arg,help='Message text.'"`
}

// Run sends the message.
func (m *MessageCmd) Run(ctx context.Context, c *botclient.Client) error {
	return printResponse(c.SendMessage(ctx, strings.Join(m.Text, " ")))
}

// MediaCmd sends a file from disk or by URL.
type MediaCmd struct {
	File string `kong:"short='f',xor='source',required,type='existingfile',help='Local file to upload.'"`
	URL  string `kong:"name='url',xor='source',required,help='URL Telegram should fetch.'"`
}

var mediaKinds = map[string]botclient.MediaKind{
	"document": botclient.Document,
	"photo":    botclient.Photo,
	"audio":    botclient.Audio,
	"video":    botclient.Video,
}

// Run sends the file using the method named by the selected subcommand.
func (m *MediaCmd) Run(ctx context.Context, kctx *kong.Context, c *botclient.Client) error {
	kind, ok := mediaKinds[kctx.Selected().Name]
	if !ok {
		return fmt.Errorf("unknown media command %q", kctx.Selected().Name)
	}
	return printResponse(c.SendMedia(ctx, kind, botclient.Media{Path: m.File, URL: m.URL}))
}

func printResponse(resp *botclient.Response, err error) error {
	var apiErr *botclient.APIError
	if err != nil && !errors.As(err, &apiErr) {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(resp); encErr != nil {
		return encErr
	}
	return err
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("tgsend"),
		kong.Description("Send messages and files to a Telegram chat through telegram-proxy."),
		kong.UsageOnError(),
	)

	level := slog.LevelWarn
	_ = level.UnmarshalText([]byte(cli.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	c := botclient.New(cli.Proxy, cli.Token, cli.ChatID, nil, logger)
	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.FatalIfErrorf(kctx.Run(c))
}
