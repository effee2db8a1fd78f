// 从题目文档生成备用题库条目
//
// 解析 PDF/TXT 中的选择题，以备用题库的 YAML 格式输出到标准输出，
// 可直接追加到 configs/fallback_questions.yaml。
//
// 用法: go run scripts/build_fallback_bank.go -match chemistry_10 docs/chemistry_10.pdf

package main

import (
	"assessment_backend/internal/quizgen"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func main() {
	match := flag.String("match", "", "文件名匹配串，默认取文件名（不含扩展名）")
	flag.Parse()
	if flag.NArg() != 1 {
		log.Fatalf("用法: build_fallback_bank [-match name] <file>")
	}
	path := flag.Arg(0)

	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("无法读取文件: %v", err)
	}

	text, err := quizgen.Extract(filepath.Base(path), data)
	if err != nil {
		log.Fatalf("文本抽取失败: %v", err)
	}

	res := quizgen.Segment(text)
	for _, s := range res.Skipped {
		log.Printf("跳过 %s", s)
	}
	if len(res.Questions) == 0 {
		log.Fatalf("未解析到任何题目")
	}

	name := *match
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	if err := enc.Encode([]quizgen.FallbackEntry{{Match: name, Questions: res.Questions}}); err != nil {
		log.Fatalf("输出失败: %v", err)
	}
	log.Printf("完成！共 %d 道题", len(res.Questions))
}
