package dto

type ListLogsRequest struct {
	Level  string `query:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Module string `query:"module"`
	Limit  int    `query:"limit" validate:"omitempty,min=1,max=500"`
	Offset int    `query:"offset" validate:"omitempty,min=0"`
}

type RunJobResponse struct {
	Job       string               `json:"job"`
	Summaries []*BillingRunSummary `json:"summaries"`
}
