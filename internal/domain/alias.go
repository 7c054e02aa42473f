package domain

import (
	"strings"
	"time"
)

// AliasRecord 表示一个一次性邮箱别名的本地记录。
// 远端权威数据来自 Cloudflare Email Routing 规则，本地记录在此基础上
// 附加用户录入的备注、网站等增强字段。
type AliasRecord struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`       // 本地唯一标识，创建时生成，与远端 tag 无关
	EmailAddress string     `json:"emailAddress" gorm:"type:varchar(255);index"` // 完整别名地址，展示保留原始大小写
	ForwardTo    string     `json:"forwardTo" gorm:"type:varchar(255)"`          // 转发目标地址
	RemoteTag    *string    `json:"remoteTag,omitempty" gorm:"type:varchar(64)"` // 远端规则标识，nil 表示尚未被远端确认
	IsEnabled    bool       `json:"isEnabled"`                                   // 转发是否启用
	Website      string     `json:"website" gorm:"type:varchar(512)"`            // 关联网站，空串表示未设置
	Notes        string     `json:"notes" gorm:"type:text"`                      // 用户备注，空串表示未设置
	Created      *time.Time `json:"created,omitempty"`                           // 手动创建时间，nil 表示未知（同步发现的记录）
	SortIndex    int        `json:"sortIndex" gorm:"index"`                      // 展示排序键，越小越靠前
	ZoneID       string     `json:"zoneId" gorm:"type:varchar(64);index"`        // 所属 Cloudflare 区域
	OwnerTag     string     `json:"ownerTag" gorm:"type:varchar(64)"`            // 最后写入该记录的安装实例标识
}

// NormalizedAddress 返回用于去重和匹配的小写地址。
func (a *AliasRecord) NormalizedAddress() string {
	return NormalizeAddress(a.EmailAddress)
}

// SyncIdentity 返回跨设备匹配用的稳定键，与本地 ID 无关。
func (a *AliasRecord) SyncIdentity() string {
	return "alias_" + a.NormalizedAddress()
}

// HasEnrichment 判断记录是否带有任一增强信号。
// 用于去重时优先保留有用户数据的记录。
func (a *AliasRecord) HasEnrichment() bool {
	return a.Created != nil || a.Notes != "" || a.Website != ""
}

// EnrichmentCount 统计 notes/website 中非空字段的数量（0-2）。
func (a *AliasRecord) EnrichmentCount() int {
	count := 0
	if a.Notes != "" {
		count++
	}
	if a.Website != "" {
		count++
	}
	return count
}

// NormalizeAddress 将邮箱地址标准化为比较用形式。
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
