// Package main provides localization for the drivecap CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Root command
		"Record synchronized driving simulation videos.": "同期走行シミュレーションの動画を記録します。",

		// Runtime messages
		"Interrupted, finishing the recording...":                           "中断されました。録画を終了処理中...",
		"Recording was interrupted before the configured duration elapsed.": "設定された時間の前に録画が中断されました。",
		"Saved: %s":                                                         "保存しました: %s",
		"Frames: %d  (~%.1fs at %d FPS)":                                    "フレーム数: %d  (約%.1f秒, %d FPS)",

		// Summary output
		"Summary saved to %s":         "サマリーを %s に保存しました",
		"Failed to write summary: %s": "サマリーの書き込みに失敗しました: %s",

		// Metrics
		"Serving Prometheus metrics on %s": "Prometheusメトリクスを %s で公開中",
		"Metrics server exited: %s":        "メトリクスサーバーが終了しました: %s",

		// Probe command
		"Codec: %s":         "コーデック: %s",
		"Resolution: %dx%d": "解像度: %dx%d",
		"Frames: %d":        "フレーム数: %d",
		"Duration: %.1fs":   "再生時間: %.1f秒",

		// Version command
		"drivecap version %s": "drivecap バージョン %s",
	})
}
