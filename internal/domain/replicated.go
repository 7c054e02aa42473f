package domain

import "time"

// ReplicatedAlias 表示复制存储中一条别名记录的快照。
// 复制存储是最终一致的，记录可能过期、缺失或重复，
// 回填引擎只从中取增强字段，不把它当作权威数据。
type ReplicatedAlias struct {
	EmailAddress string     `json:"emailAddress"`
	Notes        string     `json:"notes"`
	Website      string     `json:"website"`
	Created      *time.Time `json:"created,omitempty"`
}

// NormalizedAddress 返回小写地址。
func (r *ReplicatedAlias) NormalizedAddress() string {
	return NormalizeAddress(r.EmailAddress)
}

// EnrichmentCount 统计非空增强字段数量，用于在多份复制副本中挑选最优。
func (r *ReplicatedAlias) EnrichmentCount() int {
	count := 0
	if r.Notes != "" {
		count++
	}
	if r.Website != "" {
		count++
	}
	if r.Created != nil {
		count++
	}
	return count
}
