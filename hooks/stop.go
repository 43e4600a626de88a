package hooks

import (
	"bufio"
	"context"
	"errors"
	"os"
	"strings"

	"github.com/smallnest/hookrelay/bus"
	"github.com/smallnest/hookrelay/channels"
	"github.com/smallnest/hookrelay/internal/logger"
	"github.com/smallnest/hookrelay/types"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxSummaryRunes 完成通知中摘要的最大长度
const maxSummaryRunes = 300

// maxTranscriptLine transcript 单行最大长度
const maxTranscriptLine = 16 * 1024 * 1024

// HandleStop 处理 Stop 事件，发送任务完成通知
//
// stop_hook_active 时不发送，避免循环；没有可用通道时静默返回。
func (h *Handler) HandleStop(ctx context.Context, in *bus.StopInput) error {
	if in.StopHookActive {
		logger.Debug("Stop hook already active, skipping notice")
		return nil
	}

	notice := &channels.Notice{
		Icon:  "✅",
		Title: "Job Completed",
		Fields: []channels.Field{
			{Name: "🖥️ Host", Value: h.hostname},
			{Name: "📁 Project", Value: bus.ProjectName(in.Cwd)},
		},
	}
	if summary := LastAssistantMessage(in.TranscriptPath); summary != "" {
		notice.BodyLabel = "Summary"
		notice.Body = types.Truncate(summary, maxSummaryRunes)
	}

	return h.sendNotice(ctx, notice)
}

// sendNotice 发送通知；通知失败不影响 hook 结果
func (h *Handler) sendNotice(ctx context.Context, notice *channels.Notice) error {
	channel, err := h.channels.Primary()
	if errors.Is(err, channels.ErrNoChannel) {
		logger.Debug("No messenger configured, skipping notice", zap.String("title", notice.Title))
		return nil
	}
	if err != nil {
		return err
	}

	if err := channel.SendNotice(ctx, notice); err != nil {
		logger.Warn("Failed to send notice",
			zap.String("channel", channel.Name()),
			zap.String("title", notice.Title),
			zap.Error(err),
		)
	}
	return nil
}

// LastAssistantMessage 读取 JSONL transcript 中最后一个 assistant 文本块
//
// 文件不存在或无法读取时返回空字符串。
func LastAssistantMessage(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxTranscriptLine)

	last := ""
	for scanner.Scan() {
		line := scanner.Text()
		if !gjson.Valid(line) {
			continue
		}
		entry := gjson.Parse(line)
		if entry.Get("type").String() != "assistant" {
			continue
		}
		entry.Get("message.content").ForEach(func(_, block gjson.Result) bool {
			if block.Get("type").String() == "text" {
				last = block.Get("text").String()
			}
			return true
		})
	}
	if err := scanner.Err(); err != nil {
		logger.Debug("Failed to read transcript", zap.String("path", path), zap.Error(err))
	}
	return last
}
