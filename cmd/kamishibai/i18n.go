package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Stream":   "ストリーム",
		"Output":   "出力先",
		"Upstream": "上流ソース",
		"Browser":  "ブラウザ設定",
		"Caption":  "キャプション",
		"Logging":  "ログ",

		// Commands
		"Virtual camera that streams a still image or a live feed": "静止画またはライブ映像を配信する仮想カメラ",
		"Run the virtual camera":                                   "仮想カメラを起動",
		"Select the image shown by the camera":                     "カメラに表示する画像を選択",
		"Clear the selection so the placeholder is shown":          "選択を解除してプレースホルダーを表示",
		"Show the current selection":                               "現在の選択を表示",

		// Flags
		"YAML configuration file":                          "YAML設定ファイル",
		"Store the image data instead of its path":         "パスではなく画像データを保存",
		"Stop after this long (0 = until interrupted)":     "指定時間で停止（0 = 中断するまで）",
		"Number of simulated stream consumers":             "模擬ストリーム利用者数",
		"Scheduling mode (timer, upstream)":                "スケジューリングモード（timer, upstream）",
		"Frame rate in timer mode":                         "タイマーモードのフレームレート",
		"Frame output (null, snapshot, mp4)":               "フレーム出力先（null, snapshot, mp4）",
		"MP4 file or snapshot directory":                   "MP4ファイルまたはスナップショットのディレクトリ",
		"Output session summary to file (Markdown format)": "セッションサマリーをファイルに出力（Markdown形式）",
		"Replay an MP4 recording as the upstream feed":     "MP4録画を上流ソースとして再生",
		"Screencast a web page as the upstream feed":       "Webページのスクリーンキャストを上流ソースにする",
		"Path to Chrome executable":                        "Chrome実行ファイルのパス",
		"Run browser in non-headless mode":                 "ブラウザを非ヘッドレスモードで実行",
		"Caption drawn over every frame":                   "全フレームに重ねるキャプション",
		"Log level (debug, info, warn, error)":             "ログレベル（debug, info, warn, error）",
		"Suppress all log output":                          "全てのログ出力を抑制",

		// Command output
		"Selected %s (%dx%d) in %s":                                "%s (%dx%d) を %s に選択しました",
		"Selection cleared":                                        "選択を解除しました",
		"Selection file: %s":                                       "選択ファイル: %s",
		"Updated at: %s":                                           "更新日時: %s",
		"No image selected, the placeholder is shown":              "画像が選択されていないため、プレースホルダーを表示します",
		"Selected image is unusable, the placeholder is shown: %v": "選択された画像は使用できないため、プレースホルダーを表示します: %v",
		"Selected image: %s (%dx%d)":                               "選択中の画像: %s (%dx%d)",

		// Errors
		"an image argument is required": "画像引数が必要です",
		"stream could not be started":   "ストリームを開始できませんでした",

		// Summary content
		"Stream Summary":         "ストリームサマリー",
		"Device":                 "デバイス",
		"Session":                "セッション",
		"Frames":                 "フレーム",
		"Item":                   "項目",
		"Value":                  "値",
		"Device Name":            "デバイス名",
		"Format":                 "フォーマット",
		"Mode":                   "モード",
		"Upstream Source":        "上流ソース",
		"Duration":               "実行時間",
		"Consumers":              "利用者数",
		"Producer Constructions": "プロデューサー生成回数",
		"Producer Teardowns":     "プロデューサー破棄回数",
		"Ticks":                  "ティック数",
		"Frames Emitted":         "送出フレーム数",
		"Frames Dropped":         "ドロップフレーム数",
		"Discontinuities":        "不連続",
		"Placeholder Frames":     "プレースホルダーフレーム数",
		"Pool Capacity":          "バッファプール容量",
		"Effective Frame Rate":   "実効フレームレート",
		"Failures":               "失敗",
		"Sink Errors":            "出力エラー",
		"Sink":                   "出力先",
		"Path":                   "パス",
		"File Size":              "ファイルサイズ",
		"Generated at":           "生成日時",
		"N/A":                    "なし",
	})
}
