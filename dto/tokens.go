package dto

type ParentMintRequest struct {
	FamilyMemberID string `json:"familyMemberId" binding:"required"`
	Pin            string `json:"pin"`
}

type PrincipalTokenResponse struct {
	Token         string `json:"token"`
	PrincipalType string `json:"principalType"`
}
