package domain

import "testing"

func TestCreateReceiptRequestValidate(t *testing.T) {
	valid := CreateReceiptRequest{
		SourceType: SourceTypeS3Presigned,
		FileName:   "groceries.png",
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid request, got error: %v", err)
	}

	invalid := CreateReceiptRequest{}
	if err := invalid.Validate(); err == nil {
		t.Fatal("expected validation error for empty request")
	}

	missingObjectKey := CreateReceiptRequest{
		SourceType: SourceTypeLocalFile,
		FileName:   "groceries.png",
	}
	if err := missingObjectKey.Validate(); err == nil {
		t.Fatal("expected validation error for local_file without object_key")
	}

	missingFileName := CreateReceiptRequest{
		SourceType: SourceTypeS3Presigned,
	}
	if err := missingFileName.Validate(); err == nil {
		t.Fatal("expected validation error for missing file_name")
	}

	unsupportedSourceType := CreateReceiptRequest{
		SourceType: "http_url",
		FileName:   "groceries.png",
	}
	if err := unsupportedSourceType.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported source_type")
	}

	negativeBound := CreateReceiptRequest{
		SourceType:   SourceTypeS3Presigned,
		FileName:     "groceries.png",
		MaxDimension: -1,
	}
	if err := negativeBound.Validate(); err == nil {
		t.Fatal("expected validation error for negative max_dimension")
	}

	defaultBound := CreateReceiptRequest{
		SourceType:   SourceTypeS3Presigned,
		FileName:     "groceries.png",
		MaxDimension: 0,
	}
	if err := defaultBound.Validate(); err != nil {
		t.Fatalf("expected max_dimension 0 to mean service default, got error: %v", err)
	}
}
