package situation

import (
	"bytes"
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

var listParser = goldmark.New().Parser()

// node is one parsed bullet with its nested bullets.
type node struct {
	text     string
	children []node
}

// parseOutline reads a nested bullet list:
//
//	- situation
//	  - before
//	    - after
//
// Content outside the top-level lists is ignored, as are levels deeper than three.
func parseOutline(src []byte) []node {
	doc := listParser.Parse(text.NewReader(src))
	var out []node
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if list, ok := n.(*ast.List); ok {
			out = append(out, listItems(list, src)...)
		}
	}
	return out
}

func listItems(list *ast.List, src []byte) []node {
	var out []node
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var nd node
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.List:
				nd.children = append(nd.children, listItems(c, src)...)
			case *ast.TextBlock, *ast.Paragraph:
				if nd.text != "" {
					nd.text += " "
				}
				nd.text += blockText(c, src)
			}
		}
		nd.text = strings.TrimSpace(nd.text)
		if nd.text == "" {
			continue
		}
		out = append(out, nd)
	}
	return out
}

func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.Write(bytes.TrimSpace(seg.Value(src)))
	}
	return buf.String()
}

// Import appends every situation of the outline after the existing ones.
// Items are validated before anything is written.
func (s *Service) Import(ctx context.Context, src string) (*ImportResult, error) {
	if strings.TrimSpace(src) == "" {
		return nil, apperr.Validation("import text is empty")
	}
	if len(src) > MaxImportSize {
		return nil, apperr.Validation("import text is too large")
	}
	outline := parseOutline([]byte(src))
	if len(outline) == 0 {
		return nil, apperr.Validation("no bullet list found")
	}
	for _, sit := range outline {
		if err := validateTitle(sit.text); err != nil {
			return nil, err
		}
		for _, before := range sit.children {
			if err := validateText(before.text); err != nil {
				return nil, err
			}
			for _, after := range before.children {
				if err := validateText(after.text); err != nil {
					return nil, err
				}
			}
		}
	}

	order, err := s.nextOrder(ctx, models.CollectionSituations, nil)
	if err != nil {
		return nil, s.storeErr("import situations", err)
	}
	now := s.now()
	var situations, befores, afters []any
	var trees []models.SituationTree
	for i, sn := range outline {
		sit := models.Situation{Title: sn.text, Order: order + int64(i)}
		sit.Stamp(now)
		situations = append(situations, sit)
		tree := models.SituationTree{Situation: sit, Before: []models.BeforeTree{}}

		for j, bn := range sn.children {
			before := models.BeforeItem{SituationID: sit.ID, Text: bn.text, Order: int64(j + 1)}
			before.Stamp(now)
			befores = append(befores, before)
			bt := models.BeforeTree{BeforeItem: before, After: []models.AfterItem{}}

			for k, an := range bn.children {
				after := models.AfterItem{
					SituationID:  sit.ID,
					BeforeItemID: before.ID,
					Text:         an.text,
					Order:        int64(k + 1),
				}
				after.Stamp(now)
				afters = append(afters, after)
				bt.After = append(bt.After, after)
			}
			tree.Before = append(tree.Before, bt)
		}
		trees = append(trees, tree)
	}

	if err := s.store.InsertMany(ctx, models.CollectionSituations, situations); err != nil {
		return nil, s.storeErr("import situations", err)
	}
	if len(befores) > 0 {
		if err := s.store.InsertMany(ctx, models.CollectionBeforeItems, befores); err != nil {
			return nil, s.storeErr("import situations", err)
		}
	}
	if len(afters) > 0 {
		if err := s.store.InsertMany(ctx, models.CollectionAfterItems, afters); err != nil {
			return nil, s.storeErr("import situations", err)
		}
	}

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, trees); err != nil {
			s.logger.Warn("index imported situations failed", zap.Error(err))
		}
	}
	res := &ImportResult{Situations: len(situations), Before: len(befores), After: len(afters)}
	s.logger.Info("imported situations",
		zap.Int("situations", res.Situations), zap.Int("before", res.Before), zap.Int("after", res.After))
	return res, nil
}
