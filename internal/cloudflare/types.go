package cloudflare

// Matcher 规则匹配条件。
type Matcher struct {
	Type  string `json:"type"`  // "literal" 或 "all"
	Field string `json:"field"` // 目前只用 "to"
	Value string `json:"value"`
}

// Action 规则动作。
type Action struct {
	Type  string   `json:"type"` // "forward" / "worker" / "drop"
	Value []string `json:"value"`
}

// Rule Email Routing 转发规则。
type Rule struct {
	Tag      string    `json:"tag"`
	Name     string    `json:"name,omitempty"`
	Matchers []Matcher `json:"matchers"`
	Actions  []Action  `json:"actions"`
	Enabled  bool      `json:"enabled"`
	Priority int       `json:"priority"`
}

// MatchAddress 返回规则的匹配地址。
// 只认 literal/to 匹配器，其他类型（如 catch-all）返回空串。
func (r *Rule) MatchAddress() string {
	for _, m := range r.Matchers {
		if m.Type == "literal" && m.Field == "to" && m.Value != "" {
			return m.Value
		}
	}
	return ""
}

// ForwardTarget 返回规则的第一个转发目标，非 forward 动作返回空串。
func (r *Rule) ForwardTarget() string {
	for _, a := range r.Actions {
		if a.Type == "forward" && len(a.Value) > 0 && a.Value[0] != "" {
			return a.Value[0]
		}
	}
	return ""
}

// Usable 判断规则是否可以映射为本地别名记录。
func (r *Rule) Usable() bool {
	return r.MatchAddress() != "" && r.ForwardTarget() != ""
}

// ResultInfo 分页信息。
type ResultInfo struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalCount int `json:"total_count"`
}

// apiError API 错误条目。
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// listResponse 规则列表响应。
type listResponse struct {
	Success    bool       `json:"success"`
	Errors     []apiError `json:"errors"`
	Result     []Rule     `json:"result"`
	ResultInfo ResultInfo `json:"result_info"`
}

// ruleResponse 单条规则响应。
type ruleResponse struct {
	Success bool       `json:"success"`
	Errors  []apiError `json:"errors"`
	Result  Rule       `json:"result"`
}

// ruleRequest 创建/更新规则的请求体。
type ruleRequest struct {
	Matchers []Matcher `json:"matchers"`
	Actions  []Action  `json:"actions"`
	Enabled  bool      `json:"enabled"`
	Priority int       `json:"priority"`
}
