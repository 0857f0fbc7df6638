// Package idgen 生成时间有序的业务 ID
package idgen

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	sharedidgen "github.com/wyfcoding/pkg/idgen"
)

// Generator 带日期前缀的业务 ID 生成器
type Generator struct {
	seq func() string
	now func() time.Time
}

// New 创建生成器
// nodeID 取值 1-1023 时使用独立雪花节点，多实例部署时必须互不相同；
// nodeID <= 0 时使用公共库的全局生成器
func New(nodeID int64) (*Generator, error) {
	if nodeID <= 0 {
		return &Generator{
			seq: func() string { return fmt.Sprintf("%d", sharedidgen.GenID()) },
			now: time.Now,
		}, nil
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %w", err)
	}
	return &Generator{
		seq: func() string { return fmt.Sprintf("%d", node.Generate().Int64()) },
		now: time.Now,
	}, nil
}

// Next 返回 prefix + yyyymmdd + 序列号，例如 TXN20240105178123...
func (g *Generator) Next(prefix string) string {
	return prefix + g.now().UTC().Format("20060102") + g.seq()
}
